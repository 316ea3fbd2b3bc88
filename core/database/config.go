package database

// Config holds configuration for the database connection.
type Config struct {
	// Driver is the database driver (mysql, sqlite).
	Driver string `mapstructure:"driver" default:"mysql"`
	// Host is the database host.
	Host string `mapstructure:"host" default:"localhost"`
	// Port is the database port.
	Port int `mapstructure:"port" default:"3306"`
	// User is the database user.
	User string `mapstructure:"user" default:"root"`
	// Password is the database password.
	Password string `mapstructure:"password" default:""`
	// Name is the database name, or the file path for sqlite (":memory:" for tests).
	Name string `mapstructure:"name" default:"catalog"`
	// TimeoutSeconds bounds connection setup, reads and writes.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// MaxOpenConns caps the pool size.
	MaxOpenConns int `mapstructure:"max_open_conns" default:"100"`
	// AutoMigrate creates missing tables on startup.
	AutoMigrate bool `mapstructure:"auto_migrate" default:"true"`
}
