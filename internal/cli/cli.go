package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Serve    *ServeCommand
	Status   *StatusCommand
	Sessions *SessionsCommand
	Export   *ExportCommand
	Resume   *ResumeCommand
	Delete   *DeleteCommand
	Rename   *RenameCommand
	Note     *NoteCommand
	Cite     *CiteCommand
	Purge    *PurgeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "tracker"
	parser.LongDescription = "Local research-session recorder: captures searches, page visits, and notes from a browser extension into named sessions."

	cmds := &commands{
		Serve:    &ServeCommand{globals: &globals, version: version},
		Status:   &StatusCommand{globals: &globals, version: version},
		Sessions: &SessionsCommand{globals: &globals, version: version},
		Export:   &ExportCommand{globals: &globals, version: version},
		Resume:   &ResumeCommand{globals: &globals, version: version},
		Delete:   &DeleteCommand{globals: &globals, version: version},
		Rename:   &RenameCommand{globals: &globals, version: version},
		Note:     &NoteCommand{globals: &globals, version: version},
		Cite:     &CiteCommand{globals: &globals, version: version},
		Purge:    &PurgeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("serve", "Start the tracker daemon", "Start the tracker daemon (local HTTP service the browser extension connects to).", cmds.Serve)
	parser.AddCommand("status", "Show recording status", "Show the recording flag, current session summary, and daemon health.", cmds.Status)
	parser.AddCommand("sessions", "List completed sessions", "List completed sessions with event counts.", cmds.Sessions)
	parser.AddCommand("export", "Export a completed session", "Export a completed session as JSON or plain text.", cmds.Export)
	parser.AddCommand("resume", "Resume a completed session", "Pull a completed session back into recording.", cmds.Resume)
	parser.AddCommand("delete", "Delete a completed session", "Delete a completed session permanently.", cmds.Delete)
	parser.AddCommand("rename", "Rename a session", "Rename the current session, or a completed one by id.", cmds.Rename)
	parser.AddCommand("note", "Attach a note to a page", "Attach a note to a search or page visit in the current session.", cmds.Note)
	parser.AddCommand("cite", "Generate a citation", "Generate a citation from the metadata captured for a page.", cmds.Cite)
	parser.AddCommand("purge", "Delete ALL tracker data", "Delete ALL tracker data. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the tracker CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("tracker %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
