package config

import (
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
)

type Config struct { // define a struct for usage with go-flags
	HomeDir    string `long:"dir" description:"Specify home directory of chand as an absolute path."`
	ConfigFile string

	Reg     bool `long:"reg" description:"Run against bitcoin regtest instead of testnet3."`
	Mainnet bool `long:"mainnet" description:"Run against bitcoin mainnet."`

	BitcoindHost string `long:"rpchost" description:"bitcoind JSON-RPC host:port to connect to."`
	BitcoindUser string `long:"rpcuser" description:"bitcoind RPC username."`
	BitcoindPass string `long:"rpcpass" description:"bitcoind RPC password."`

	Engine string `long:"engine" description:"Channel engine backend linked into this binary."`

	PollInterval       int64 `long:"pollinterval" description:"Chain tip poll interval in seconds."`
	CheckpointInterval int64 `long:"checkpointinterval" description:"Ledger checkpoint interval in seconds."`
	ReconnectInterval  int64 `long:"reconnectinterval" description:"Peer reconnect interval in seconds."`

	Verbose bool `short:"v" long:"verbose" description:"Set verbosity to true."`

	Params *chaincfg.Params
}

var (
	DefaultHomeDir            = filepath.Join(os.Getenv("HOME"), ".chand")
	DefaultConfigFilename     = "chand.conf"
	DefaultKeyFileName        = "privkey.hex"
	DefaultLogFileName        = "chand.log"
	DefaultEngine             = "extern"
	DefaultPollInterval       = int64(1)
	DefaultCheckpointInterval = int64(600)
	DefaultReconnectInterval  = int64(60)
)

// Default returns a Config with the defaults filled in, ready for the
// parsers to override.
func Default() Config {
	return Config{
		HomeDir:            DefaultHomeDir,
		Engine:             DefaultEngine,
		PollInterval:       DefaultPollInterval,
		CheckpointInterval: DefaultCheckpointInterval,
		ReconnectInterval:  DefaultReconnectInterval,
	}
}

// NewConfigParser returns a new command line flags parser.
func NewConfigParser(conf *Config, options flags.Options) *flags.Parser {
	parser := flags.NewParser(conf, options)
	return parser
}
