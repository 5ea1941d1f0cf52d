// Command kdbx-decrypt unlocks a KDBX archive and prints its decrypted,
// decompressed XML document to stdout.
//
// Grounded on original_source/src/bin/kdbx_decrypt.rs; CLI shape on
// tellerops-teller/main.go's kong-tagged CLI struct.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/spectralops-labs/kdbx"
	"github.com/spectralops-labs/kdbx/pkg/logging"
)

var cli struct {
	File     string `arg:"" help:"Path to the KDBX archive."`
	Password string `arg:"" optional:"" default:"kdbxrs" help:"Database password."`
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

	fmt.Println(string(unlocked.RawXML()))
	os.Exit(0)
}
