package chanutil

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/lnchan/chand/logging"
)

// ReadOrCreateSeed reads the 32 byte node seed from path, creating a
// fresh random one (and syncing it to disk) if the file isn't there.
// A seed file of the wrong size is an error, not something to paper
// over; losing or mangling the seed means losing channel funds.
func ReadOrCreateSeed(path string) (*[32]byte, error) {
	seed := new([32]byte)

	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("seed file %s is %d bytes, expected 32", path, len(b))
		}
		copy(seed[:], b)
		return seed, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	logging.Infof("no seed file at %s, generating a new one\n", path)
	_, err = rand.Read(seed[:])
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}
	_, err = f.Write(seed[:])
	if err != nil {
		f.Close()
		return nil, err
	}
	// flush before we hand the seed out; a half written seed file is
	// worse than none
	err = f.Sync()
	if err != nil {
		f.Close()
		return nil, err
	}
	return seed, f.Close()
}
