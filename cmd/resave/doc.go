// Command resave is the CLI for the resave engine: it creates and controls
// batch re-save jobs, saves single shares ad hoc, inspects capacity and
// pending transfers, and runs the daemon in the foreground.
//
// Job control is store-mediated: commands write desired statuses to the
// shared SQLite database and the daemon's driver picks them up.
package main
