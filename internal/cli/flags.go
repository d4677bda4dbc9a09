package cli

import "github.com/ant981228/research-tracker/internal/storage"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// ServeCommand — run the tracker daemon.
type ServeCommand struct {
	Host string `long:"host" description:"Override listen host"`
	Port int    `long:"port" description:"Override listen port"`

	globals *GlobalFlags
	version string
}

// StatusCommand — show the recording flag and current session summary.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// SessionsCommand — list completed sessions with counts.
type SessionsCommand struct {
	globals *GlobalFlags
	version string
}

// ExportCommand — export a completed session as JSON or text.
type ExportCommand struct {
	ID     string `long:"id" description:"Session ID (required)"`
	Format string `long:"format" description:"Output format: json | txt" default:"json"`
	Out    string `long:"out" description:"Write to file instead of stdout"`

	globals *GlobalFlags
	version string
}

// ResumeCommand — pull a completed session back into recording.
type ResumeCommand struct {
	ID string `long:"id" description:"Session ID (required)"`

	globals *GlobalFlags
	version string
}

// DeleteCommand — delete a completed session permanently.
type DeleteCommand struct {
	ID    string `long:"id" description:"Session ID (required)"`
	Force bool   `long:"force" description:"Skip confirmation prompt"`

	globals *GlobalFlags
	version string
}

// RenameCommand — rename the current session, or a completed one by id.
type RenameCommand struct {
	ID   string `long:"id" description:"Completed session ID (omit to rename the current session)"`
	Name string `long:"name" description:"New session name (required)"`

	globals *GlobalFlags
	version string
}

// NoteCommand — attach a note to a page in the current session.
type NoteCommand struct {
	URL  string `long:"url" description:"URL the note belongs to (required)"`
	Note string `long:"note" description:"Note content (required)"`

	globals *GlobalFlags
	version string
}

// CiteCommand — render a citation from captured page metadata.
type CiteCommand struct {
	URL   string `long:"url" description:"URL to cite (required)"`
	Style string `long:"style" description:"Citation style: mla9 | apa7 | chicago" default:"mla9"`

	globals *GlobalFlags
	version string
}

// PurgeCommand — delete ALL tracker data with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	store   *storage.SQLiteStore // injectable for testing; nil means open default store
}
