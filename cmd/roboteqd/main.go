package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/jonbinney/roboteq.go/pkg/bridge"
	"github.com/jonbinney/roboteq.go/pkg/config"
	"github.com/jonbinney/roboteq.go/pkg/framework"
	"github.com/jonbinney/roboteq.go/pkg/roboteq"
)

func main() {
	configPath := flag.String("config", "/etc/roboteq/roboteq.yaml", "Path to config file.")
	port := flag.String("port", "", "Override the serial port from the config file.")
	broker := flag.String("broker", "", "Override the MQTT broker URL from the config file.")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		glog.Exitf("load config: %v", err)
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *broker != "" {
		cfg.MQTT.BrokerURL = *broker
	}

	motors, err := cfg.Motorize()
	if err != nil {
		glog.Exitf("motor config: %v", err)
	}
	if len(motors) == 0 {
		glog.Exit("no motors configured")
	}

	transport, err := roboteq.Open(cfg.Serial.Port)
	if err != nil {
		glog.Exitf("serial: %v", err)
	}
	defer transport.Close()

	// A partially programmed controller must not be run, so any failure
	// here is fatal to startup.
	if err := roboteq.Configure(transport, cfg.SafetyLimits(), motors, cfg.DigitalInputs()); err != nil {
		glog.Exitf("startup configuration failed: %v", err)
	}

	queue, err := bridge.NewQueueFromURL(cfg.MQTT.BrokerURL)
	if err != nil {
		glog.Exitf("mqtt: %v", err)
	}
	if err := queue.Connect(); err != nil {
		glog.Exitf("mqtt connect %s: %v", cfg.MQTT.BrokerURL, err)
	}
	defer queue.Close()

	br := bridge.New(queue, motors)
	br.Subscribe()

	loop := roboteq.NewLoop(transport, motors, br)
	loop.Interval = cfg.CycleInterval()
	loop.CommandTimeout = cfg.CommandTimeout()

	runner := framework.NewRunner().HandleSignals()
	runner.Go(framework.NamedRun("control-loop", loop))
	if err := runner.Wait(); err != nil {
		glog.Exitf("%v", err)
	}
}
