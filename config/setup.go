package config

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"

	"github.com/lnchan/chand/chanutil"
	"github.com/lnchan/chand/logging"
)

// createDefaultConfigFile creates a config file  -- only call this if the
// config file isn't already there
func createDefaultConfigFile(destinationPath string) error {
	dest, err := os.OpenFile(filepath.Join(destinationPath, DefaultConfigFilename),
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	writer := bufio.NewWriter(dest)
	defaultArgs := []byte("rpchost=127.0.0.1:18332\n")
	_, err = writer.Write(defaultArgs)
	if err != nil {
		return err
	}
	writer.Flush()
	return nil
}

// Setup performs most of the startup plumbing: parses the command line
// and config file, creates the home directory and a default config on
// first run, points the log at a file, and reads in the node seed.
// Anything wrong here is fatal; there is no point starting a channel
// node with a broken config or unreadable keys.
func Setup(conf *Config) *[32]byte {
	// Pre-parse the command line to find an alternative home directory
	// before we go looking for the config file.
	preconf := *conf
	preParser := NewConfigParser(&preconf, flags.HelpFlag)
	_, err := preParser.ParseArgs(os.Args)
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			logging.Fatal(err)
		}
	}

	parser := NewConfigParser(conf, flags.Default)

	if _, err := os.Stat(preconf.HomeDir); os.IsNotExist(err) {
		os.Mkdir(preconf.HomeDir, 0700)
		err := createDefaultConfigFile(preconf.HomeDir)
		if err != nil {
			logging.Fatalf("could not create a default config file: %s", err.Error())
		}
	}

	confPath := filepath.Join(preconf.HomeDir, DefaultConfigFilename)
	if _, err := os.Stat(confPath); os.IsNotExist(err) {
		err := createDefaultConfigFile(preconf.HomeDir)
		if err != nil {
			logging.Fatal(err)
		}
	}

	conf.ConfigFile = confPath
	err = flags.NewIniParser(parser).ParseFile(conf.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			logging.Fatal(err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.ParseArgs(os.Args)
	if err != nil {
		logging.Fatal(err)
	}

	switch {
	case conf.Mainnet && conf.Reg:
		logging.Fatal("pick one of -mainnet and -reg")
	case conf.Mainnet:
		conf.Params = &chaincfg.MainNetParams
	case conf.Reg:
		conf.Params = &chaincfg.RegressionNetParams
	default:
		conf.Params = &chaincfg.TestNet3Params
	}

	if conf.BitcoindHost == "" {
		switch conf.Params {
		case &chaincfg.MainNetParams:
			conf.BitcoindHost = "127.0.0.1:8332"
		case &chaincfg.RegressionNetParams:
			conf.BitcoindHost = "127.0.0.1:18443"
		default:
			conf.BitcoindHost = "127.0.0.1:18332"
		}
	}

	logFilePath := filepath.Join(conf.HomeDir, DefaultLogFileName)
	logfile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logging.Fatal(err)
	}
	if conf.Verbose {
		logging.SetLogFile(logfile)
		logging.SetLogLevel(int(logging.LogLevelDebug))
	} else {
		logging.SetLogFileOnly(logfile)
	}

	keyFilePath := filepath.Join(conf.HomeDir, DefaultKeyFileName)
	key, err := chanutil.ReadOrCreateSeed(keyFilePath)
	if err != nil {
		logging.Fatal(err)
	}
	return key
}
