package jobs

// Config holds the job orchestrator settings.
type Config struct {
	// Workers is the number of jobs run concurrently.
	Workers int `mapstructure:"workers" default:"2"`
	// QueueSize is the capacity of the dispatch channel.
	QueueSize int `mapstructure:"queue_size" default:"64"`
	// PollMillis is how often queued jobs are re-dispatched.
	PollMillis int `mapstructure:"poll_millis" default:"2000"`
}
