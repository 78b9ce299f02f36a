package broker

// Config selects the one broker adapter every route of the process uses. Each adapter carries
// its own detailed config struct (kafka.Config, nats.Config, rabbitmq.Config);
// this only selects the driver.
type Config struct {
	// Driver names the adapter: memory, kafka, nats, rabbitmq.
	Driver string `env:"BROKER_DRIVER" env-default:"memory"`
}
