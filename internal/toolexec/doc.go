// Package toolexec runs the external alignment and profile-building commands
// that famforge drives.
//
// Commands are described by config.Tool entries whose arguments may reference
// {family}, {seed}, {cluster}, and {dir}. Expand turns a tool plus the
// variables of one family into a Command; an Executor runs it inside the
// family directory, optionally redirecting stdout to a file and dropping
// lines that contain any of the configured exclude substrings (the
// Stockholm "//" terminator, for example). Tests swap in their own Executor.
package toolexec
