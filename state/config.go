package state

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/helpers"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/modem"
	"github.com/temoto/nbiot/mqtt"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Hardware HardwareConfig `hcl:"hardware"`
	Modem    ModemConfig    `hcl:"modem"`
	MQTT     MQTTConfig     `hcl:"mqtt"`
	Bridge   BridgeConfig   `hcl:"bridge"`

	_copy_guard sync.Mutex //nolint:unused
}

type HardwareConfig struct {
	UartDriver   string `hcl:"uart_driver"` // serial, file
	UartDevice   string `hcl:"uart_device"`
	UartBaudrate int    `hcl:"uart_baudrate"`
	PinDriver    string `hcl:"pin_driver"` // cdev, periph, null
	PinChip      string `hcl:"pin_chip"`
	PowerPin     string `hcl:"power_pin"`
	WakePin      string `hcl:"wake_pin"`
}

type ModemConfig struct { //nolint:maligned
	BufferSize       int    `hcl:"buffer_size"`
	CommandTimeoutMs int    `hcl:"command_timeout_ms"`
	PowerUpDelayMs   int    `hcl:"power_up_delay_ms"`
	SimPin           string `hcl:"sim_pin"`
	UnlockTries      int    `hcl:"unlock_tries"`
	SleepMode        string `hcl:"sleep_mode"`
	ErrorVerbosity   int    `hcl:"error_verbosity"`
	UnsolicitedQueue int    `hcl:"unsolicited_queue"`
	LogDebug         bool   `hcl:"log_debug"`
}

type MQTTConfig struct { //nolint:maligned
	Server       string `hcl:"server"`
	Port         int    `hcl:"port"`
	TimeoutMs    int    `hcl:"timeout_ms"`
	BufferSize   int    `hcl:"buffer_size"`
	ClientID     string `hcl:"client_id"`
	KeepaliveSec int    `hcl:"keepalive_sec"`
	Clean        bool   `hcl:"clean"`
	Username     string `hcl:"username"`
	Password     string `hcl:"password"`
}

type BridgeConfig struct {
	Broker    string   `hcl:"broker"`
	ClientID  string   `hcl:"client_id"`
	Topics    []string `hcl:"topics"`
	Subscribe []string `hcl:"subscribe"`
	// Inbound is local topic prefix for messages received through module.
	Inbound string `hcl:"inbound"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

const DefaultBaudrate = 115200

// EngineConfig converts modem block, zero values keep engine defaults.
func (c *Config) EngineConfig() modem.Config {
	return modem.Config{
		BufferSize:       c.Modem.BufferSize,
		CommandTimeout:   helpers.IntMillisecondDefault(c.Modem.CommandTimeoutMs, modem.DefaultCommandTimeout),
		PowerUpDelay:     helpers.IntMillisecondDefault(c.Modem.PowerUpDelayMs, modem.DefaultPowerUpDelay),
		UnsolicitedQueue: c.Modem.UnsolicitedQueue,
	}
}

func (c *Config) SleepMode() (command.SleepMode, error) {
	if c.Modem.SleepMode == "" {
		return command.SleepDisabled, nil
	}
	return command.ParseSleepMode(c.Modem.SleepMode)
}

func (c *Config) MQTTSettings() mqtt.Settings {
	return mqtt.Settings{
		Server:     c.MQTT.Server,
		Port:       c.MQTT.Port,
		Timeout:    time.Duration(c.MQTT.TimeoutMs) * time.Millisecond,
		BufferSize: c.MQTT.BufferSize,
	}
}

func (c *Config) MQTTConnect() mqtt.ConnectOptions {
	return mqtt.ConnectOptions{
		ClientID:     c.MQTT.ClientID,
		KeepaliveSec: uint16(c.MQTT.KeepaliveSec),
		CleanSession: c.MQTT.Clean,
		Username:     c.MQTT.Username,
		Password:     c.MQTT.Password,
	}
}

func (c *Config) pinConfig(name, label string) pin.Config {
	return pin.Config{
		Driver: c.Hardware.PinDriver,
		Chip:   c.Hardware.PinChip,
		Name:   name,
		Label:  label,
	}
}

// Validate reports every config error at once.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if _, err := c.SleepMode(); err != nil {
		errs = append(errs, errors.Annotate(err, "config: modem.sleep_mode"))
	}
	if c.Modem.ErrorVerbosity < 0 || c.Modem.ErrorVerbosity > 2 {
		errs = append(errs, errors.NotValidf("config: modem.error_verbosity=%d", c.Modem.ErrorVerbosity))
	}
	if c.Modem.BufferSize < 0 {
		errs = append(errs, errors.NotValidf("config: modem.buffer_size=%d", c.Modem.BufferSize))
	}
	if c.MQTT.Server != "" && (c.MQTT.Port <= 0 || c.MQTT.Port > 65535) {
		errs = append(errs, errors.NotValidf("config: mqtt.port=%d", c.MQTT.Port))
	}
	if c.Hardware.UartBaudrate < 0 {
		errs = append(errs, errors.NotValidf("config: hardware.uart_baudrate=%d", c.Hardware.UartBaudrate))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
