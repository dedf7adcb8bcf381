// Command conveyor is the CLI for the document conversion pipeline: it runs
// conversions, resumes interrupted runs from checkpoints, and manages the
// checkpoint store and configuration.
package main
