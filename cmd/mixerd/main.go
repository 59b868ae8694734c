package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/cwbudde/algo-mixer/internal/mixerapp"
)

func main() {
	var flags mixerapp.Flags
	flags.Register(flag.CommandLine)
	flag.Parse()

	cfg, err := flags.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "mixerd: ", log.LstdFlags)
	app, err := mixerapp.Start(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting mixer: %v\n", err)
		os.Exit(1)
	}
	topo := app.Topology
	color.Blue("%d channels, %d busses (%d physical) on %d cores, transport %s",
		topo.NumChannels(), topo.NumLogicalBusses(), topo.NumPhysicalBusses(), topo.NumCores(), cfg.Transport)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transportErr := make(chan error, 1)
	go func() {
		transportErr <- app.Transport.Run(ctx)
	}()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	d := &dispatcher{c: app.Controller, store: app.Store}
	for {
		select {
		case <-ctx.Done():
			color.Yellow("shutting down")
			<-transportErr
			return
		case err := <-transportErr:
			if err != nil {
				fmt.Fprintf(os.Stderr, "Transport stopped: %v\n", err)
				os.Exit(1)
			}
			return
		case line, ok := <-lines:
			if !ok {
				stop()
				<-transportErr
				return
			}
			reply, err := d.exec(line)
			if errors.Is(err, errQuit) {
				stop()
				<-transportErr
				return
			}
			if err != nil {
				color.Red("error: %v", err)
				continue
			}
			if reply != "" {
				color.Green("%s", reply)
			}
		}
	}
}
