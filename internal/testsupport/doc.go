// Package testsupport provides shared fixtures for package tests: temp-dir
// configs, source files, and checkpoint stores.
package testsupport
