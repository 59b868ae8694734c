package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/cwbudde/algo-mixer/controller"
	"github.com/cwbudde/algo-mixer/internal/mixerapp"
)

// Meter bars show the top meterRangeDB of the scale.
const meterRangeDB = 60.0

var titleStyle = ui.NewStyle(ui.ColorYellow, ui.ColorBlue)

func main() {
	var flags mixerapp.Flags
	flags.Register(flag.CommandLine)
	refresh := flag.Duration("refresh", 100*time.Millisecond, "Screen refresh interval")
	flag.Parse()

	cfg, err := flags.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// The dashboard owns the terminal; startup diagnostics go nowhere.
	app, err := mixerapp.Start(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting mixer: %v\n", err)
		os.Exit(1)
	}

	if err := run(app, *refresh); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run owns the terminal until the operator quits or the transport fails.
func run(app *mixerapp.App, refresh time.Duration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transportErr := make(chan error, 1)
	go func() {
		transportErr <- app.Transport.Run(ctx)
	}()

	if err := ui.Init(); err != nil {
		return fmt.Errorf("initialize terminal: %w", err)
	}
	defer ui.Close()

	k := &console{c: app.Controller}
	k.status = k.describe()
	render(app.Controller, k)

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	events := ui.PollEvents()
	for {
		select {
		case e := <-events:
			if e.ID == "<Resize>" {
				ui.Clear()
			}
			if k.handle(e.ID) {
				return nil
			}
			render(app.Controller, k)
		case <-ticker.C:
			render(app.Controller, k)
		case err := <-transportErr:
			if err != nil {
				return fmt.Errorf("transport stopped: %w", err)
			}
			return nil
		}
	}
}

func render(c *controller.Controller, k *console) {
	width, height := ui.TerminalDimensions()
	m := c.Meter()
	half := (height - 3) / 2

	channels := meterChart("  Channels  ", m.Channels, "c")
	channels.BarColors = make([]ui.Color, len(m.Channels))
	for i := range channels.BarColors {
		channels.BarColors[i] = ui.ColorGreen
		if i == k.selected {
			channels.BarColors[i] = ui.ColorCyan
		}
	}
	channels.SetRect(0, 0, width, half)

	busses := meterChart("  Busses  ", m.Busses, "p")
	busses.BarColors = []ui.Color{ui.ColorMagenta}
	busses.SetRect(0, half, width, 2*half)

	status := widgets.NewParagraph()
	status.Text = k.status
	status.Border = false
	status.SetRect(0, height-3, width, height-2)

	help := widgets.NewParagraph()
	help.Text = "[q:](fg:black) Quit [|](fg:white,bg:black) " +
		"[Left/Right:](fg:black) Select channel [|](fg:white,bg:black) " +
		"[Up/Down:](fg:black) Master fader [|](fg:white,bg:black) " +
		"[m:](fg:black) Mute [|](fg:white,bg:black) " +
		"[p:](fg:black) PFL "
	help.Border = false
	help.TextStyle = titleStyle
	help.SetRect(0, height-1, width, height)

	ui.Render(channels, busses, status, help)
}

func meterChart(title string, db []float64, prefix string) *widgets.BarChart {
	bc := widgets.NewBarChart()
	bc.Title = title
	bc.TitleStyle = titleStyle
	bc.MaxVal = meterRangeDB
	bc.BarWidth = 4
	bc.BarGap = 1
	bc.Data = make([]float64, len(db))
	bc.Labels = make([]string, len(db))
	for i, v := range db {
		bc.Data[i] = mixerapp.Clamp(v+meterRangeDB, 0, meterRangeDB)
		bc.Labels[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	bc.NumFormatter = func(v float64) string {
		if v <= 0 {
			return ""
		}
		return fmt.Sprintf("%.0f", v-meterRangeDB)
	}
	bc.LabelStyles = []ui.Style{ui.NewStyle(ui.ColorWhite)}
	bc.NumStyles = []ui.Style{ui.NewStyle(ui.ColorBlack)}
	return bc
}
