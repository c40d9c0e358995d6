// roboteq-setid stores a persistent numeric identifier in the
// controller's user EEPROM so a fleet host can tell physically
// identical controllers apart.
package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"fmt"

	"github.com/golang/glog"

	"github.com/jonbinney/roboteq.go/pkg/roboteq"
)

func main() {
	port := flag.String("port", "/dev/ttyACM0", "Serial port of the controller.")
	id := flag.Int("id", -1, "Identifier to store (0..65535).")
	flag.Parse()

	if *id < 0 || *id > 65535 {
		glog.Exitf("id must be in 0..65535, got %d", *id)
	}

	transport, err := roboteq.Open(*port)
	if err != nil {
		glog.Exitf("serial: %v", err)
	}
	defer transport.Close()

	// Echo is on until this lands; the line read back is the command's
	// own echo.
	if _, err := transport.Exchange(roboteq.ConfigCmd("ECHOF", 1)); err != nil {
		glog.Exitf("echo off: %v", err)
	}
	if err := transport.Drain(); err != nil {
		glog.Exitf("drain: %v", err)
	}

	steps := []struct {
		name string
		cmd  string
	}{
		{"store id", roboteq.ConfigCmd("EE", 0, int64(*id))},
		{"save to eeprom", roboteq.MaintenanceCmd("EESAV")},
	}
	for _, s := range steps {
		line, err := transport.Exchange(s.cmd)
		if err != nil {
			glog.Exitf("%s: %v", s.name, err)
		}
		if !roboteq.IsAck(line) {
			glog.Exitf("%s rejected: %q", s.name, line)
		}
	}
	fmt.Printf("controller on %s now has id %d\n", *port, *id)
}
