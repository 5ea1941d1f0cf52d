// Command kdbx-parse unlocks a KDBX archive and prints its parsed group
// and entry tree.
//
// Grounded on original_source/src/bin/kdbx_parse.rs; CLI shape on
// tellerops-teller/main.go's kong-tagged CLI struct.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/spectralops-labs/kdbx"
	"github.com/spectralops-labs/kdbx/pkg/logging"
)

var cli struct {
	File     string `arg:"" help:"Path to the KDBX archive."`
	Password string `arg:"" optional:"" default:"kdbxrs" help:"Database password."`
}

func printGroup(g *kdbx.Group, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	fmt.Printf("%sGroup %q (%s)\n", indent, g.Name, g.UUID)
	for i := range g.Entries {
		printEntry(&g.Entries[i], depth+1)
	}
	for i := range g.Groups {
		printGroup(&g.Groups[i], depth+1)
	}
}

func printEntry(e *kdbx.Entry, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	fmt.Printf("%sEntry %q (%s)\n", indent, e.Title(), e.UUID)
	for _, f := range e.Fields {
		if f.IsProtected() {
			fmt.Printf("%s  %s = <protected>\n", indent, f.Key)
		} else {
			fmt.Printf("%s  %s = %s\n", indent, f.Key, f.Value)
		}
	}
}

func main() {
	kong.Parse(&cli)
	logger := logging.GetRoot()

	locked, err := kdbx.Open(cli.File)
	if err != nil {
		logger.WithError(err).Fatal("could not open %s", cli.File)
	}

	unlocked, err := locked.Unlock(kdbx.CompositeKey{Password: cli.Password})
	if err != nil {
		logger.WithError(err).Fatal("could not unlock %s", cli.File)
	}

	db := unlocked.Database()
	fmt.Printf("Database %q: %s\n", db.Meta.DatabaseName, db.Meta.DatabaseDescription)
	printGroup(&db.Root, 0)
}
