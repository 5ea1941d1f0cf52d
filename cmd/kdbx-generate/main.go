// Command kdbx-generate writes a small sample KDBX archive, useful for
// exercising the rest of the toolchain against a known-good file.
//
// Grounded on original_source/src/bin/kdbx_generate.rs; CLI shape on
// tellerops-teller/main.go's kong-tagged CLI struct.
package main

import (
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/spectralops-labs/kdbx"
	"github.com/spectralops-labs/kdbx/pkg/logging"
)

var cli struct {
	Out      string `arg:"" optional:"" default:"kdbx.kdbx" help:"Output path."`
	Password string `arg:"" optional:"" default:"kdbxrs" help:"Database password."`
}

func sampleTimes() kdbx.Times {
	t := kdbx.NewTimes()
	t.LastAccessTime = kdbx.NewTimestamp(time.Date(2020, 5, 1, 1, 2, 3, 0, time.UTC))
	t.LastModificationTime = kdbx.NewTimestamp(time.Date(2020, 4, 1, 1, 2, 3, 0, time.UTC))
	t.CreationTime = kdbx.NewTimestamp(time.Date(2020, 4, 1, 1, 1, 3, 0, time.UTC))
	t.LocationChanged = kdbx.NewTimestamp(time.Date(2020, 4, 1, 1, 1, 3, 0, time.UTC))
	t.ExpiryTime = kdbx.NewTimestamp(time.Date(2020, 4, 1, 1, 1, 3, 0, time.UTC))
	t.UsageCount = 1
	return t
}

func main() {
	kong.Parse(&cli)
	logger := logging.GetRoot()

	db := kdbx.NewDatabase("kdbx-generate")
	db.Meta.DatabaseName = "BarName"
	db.Meta.DatabaseDescription = "BazDesc"
	db.Root.Name = "Root"
	db.Root.Times = sampleTimes()

	entry := kdbx.NewEntry()
	entry.Times = sampleTimes()
	entry.SetField(kdbx.Field{Key: "Title", State: kdbx.ValueStandard, Value: "Bar"})
	entry.SetField(kdbx.Field{Key: "Password", State: kdbx.ValueProtected, Value: cli.Password})
	db.Root.AddEntry(entry)

	unlocked, err := kdbx.FromDatabase(db)
	if err != nil {
		logger.WithError(err).Fatal("could not build archive")
	}
	if err := unlocked.SetKey(kdbx.CompositeKey{Password: cli.Password}); err != nil {
		logger.WithError(err).Fatal("could not set key")
	}

	f, err := os.Create(cli.Out)
	if err != nil {
		logger.WithError(err).Fatal("could not create %s", cli.Out)
	}
	defer f.Close()

	if err := unlocked.Write(f); err != nil {
		logger.WithError(err).Fatal("could not write %s", cli.Out)
	}
}
