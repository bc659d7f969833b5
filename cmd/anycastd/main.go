// Copyright 2015 The MOAC-core Authors
// This file is part of MOAC-core.
//
// MOAC-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// MOAC-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with MOAC-core. If not, see <http://www.gnu.org/licenses/>.

// Command anycastd runs a small in-process simulated mesh and drives
// an anycast round trip across it, the same demonstration role
// example-anycast.c plays for the source: one mote listens on an
// anycast address, another sends to it, and every event along the way
// is printed as it happens.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/MOACChain/MoacLib/log"
	"gopkg.in/urfave/cli.v1"

	"github.com/gordontoh/nap1/anycast"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a toml config describing the simulated mesh",
	}
	cacheFlag = cli.BoolFlag{
		Name:  "cache",
		Usage: "enable the response cache (enhanced variant)",
	}
	channelsFlag = cli.IntFlag{
		Name:  "channels",
		Usage: "base radio channel the demo mesh listens on",
		Value: 11,
	}
	payloadFlag = cli.StringFlag{
		Name:  "payload",
		Usage: "payload bytes the client sends",
		Value: "hello from anycastd",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "anycastd"
	app.Usage = "simulated anycast mesh demo"
	app.Flags = []cli.Flag{configFlag, cacheFlag, channelsFlag, payloadFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	if ctx.IsSet(cacheFlag.Name) {
		cfg.Cache = ctx.Bool(cacheFlag.Name)
	}
	if ctx.IsSet(channelsFlag.Name) {
		cfg.Channels = ctx.Int(channelsFlag.Name)
	}

	d := newDisplay()
	medium := newLoopbackMedium()

	var serverCfg, clientCfg NodeConfig
	for _, n := range cfg.Nodes {
		if len(n.Listens) > 0 {
			serverCfg = n
		} else {
			clientCfg = n
		}
	}

	sFlood, sMesh := newLoopbackNode(medium, anycast.NodeAddress(serverCfg.Address))
	server, err := anycast.Open(sFlood, sMesh, cfg.Channels, anycast.Callbacks{
		Recv: func(conn *anycast.Connection, originator anycast.NodeAddress, address anycast.AnycastAddress, payload []byte) {
			d.recv(serverCfg.Name, uint8(address), payload)
		},
	}, anycast.WithTimeout(cfg.Timeout))
	if err != nil {
		return err
	}
	defer server.Close()

	for _, addr := range serverCfg.Listens {
		if err := server.ListenOn(anycast.AnycastAddress(addr)); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	cFlood, cMesh := newLoopbackNode(medium, anycast.NodeAddress(clientCfg.Address))
	client, err := anycast.Open(cFlood, cMesh, cfg.Channels, anycast.Callbacks{
		Sent: func(conn *anycast.Connection, address anycast.AnycastAddress, payload []byte) {
			d.sent(clientCfg.Name, uint8(address), payload)
			close(done)
		},
		Timedout: func(conn *anycast.Connection, e *anycast.TimeoutError) {
			d.timeout(clientCfg.Name, e.Code.String())
			close(done)
		},
	}, anycast.WithCache(cfg.Cache), anycast.WithTimeout(cfg.Timeout))
	if err != nil {
		return err
	}
	defer client.Close()

	target := serverCfg.Listens[0]
	d.info("sending from %s to anycast address %d", clientCfg.Name, target)
	log.Infof("anycastd demo send target=%d", target)
	if err := client.Send(anycast.AnycastAddress(target), []byte(ctx.String(payloadFlag.Name))); err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(cfg.Timeout + 2*time.Second):
		d.info("demo round trip never completed")
	}
	return nil
}
