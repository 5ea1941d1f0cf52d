// Command kdbx-dump-header prints a KDBX archive's outer header without
// needing the password.
//
// Grounded on original_source/src/bin/kdbx_dump_header.rs; CLI shape on
// tellerops-teller/main.go's kong-tagged CLI struct.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/spectralops-labs/kdbx"
	"github.com/spectralops-labs/kdbx/pkg/logging"
)

var cli struct {
	File string `arg:"" help:"Path to the KDBX archive."`
}

func printKdf(p kdbx.KdfParams) {
	switch p.Algorithm {
	case kdbx.KdfArgon2d, kdbx.KdfArgon2id:
		fmt.Println("KDF: Argon2")
		fmt.Printf("\tVersion: %d\n", p.Version)
		fmt.Printf("\tLanes: %d\n", p.Lanes)
		fmt.Printf("\tMemory: %d bytes (%dkib)\n", p.MemoryBytes, p.MemoryBytes/1024)
		fmt.Printf("\tIterations: %d\n", p.Iterations)
		fmt.Printf("\tSalt: %x\n", p.Salt)
	case kdbx.KdfAES256Kdbx4, kdbx.KdfAES256Kdbx31:
		fmt.Println("KDF: AES")
		fmt.Printf("\tRounds: %d\n", p.Rounds)
		fmt.Printf("\tSalt: %x\n", p.Salt)
	default:
		fmt.Printf("KDF: Unknown (%s)\n", p.UnknownUUID)
	}
}

func main() {
	kong.Parse(&cli)
	logger := logging.GetRoot()

	locked, err := kdbx.Open(cli.File)
	if err != nil {
		logger.WithError(err).Fatal("could not open %s", cli.File)
	}

	header := locked.Header()
	major, minor := locked.Version()
	fmt.Printf("Version: %d.%d\n", major, minor)
	fmt.Printf("Cipher: %s\n", header.Cipher)
	fmt.Printf("Compression: %d\n", header.CompressionType)
	printKdf(header.KdfParams)
	fmt.Printf("Master Seed: %x\n", header.MasterSeed)
	fmt.Printf("Encryption IV: %x\n", header.EncryptionIv)
	fmt.Printf("Other headers: %d\n", len(header.OtherFields))
}
