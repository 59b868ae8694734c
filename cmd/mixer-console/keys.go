package main

import (
	"fmt"

	"github.com/cwbudde/algo-mixer/controller"
	"github.com/cwbudde/algo-mixer/dsp"
	"github.com/cwbudde/algo-mixer/internal/mixerapp"
	"github.com/cwbudde/algo-mixer/mixer"
)

const (
	faderStepDB = 1.0
	faderMaxDB  = 10.0

	// Below this the fader jumps straight to off.
	faderLowDB = -60.0
)

// console holds the operator's selection and turns key events into
// updates. It runs on the event-loop goroutine only.
type console struct {
	c        *controller.Controller
	selected int
	status   string
}

// handle applies one termui event ID and reports whether to quit.
func (k *console) handle(id string) (quit bool) {
	n := k.c.Topology().NumChannels()
	var err error
	switch id {
	case "q", "<C-c>", "<Escape>":
		return true
	case "<Left>", "h":
		k.selected = (k.selected + n - 1) % n
	case "<Right>", "l":
		k.selected = (k.selected + 1) % n
	case "<Up>", "k":
		err = k.nudgeFader(faderStepDB)
	case "<Down>", "j":
		err = k.nudgeFader(-faderStepDB)
	case "m":
		err = k.toggle(mixer.ParamMute)
	case "p":
		err = k.toggle(mixer.ParamPFL)
	default:
		return false
	}
	if err != nil {
		k.status = "error: " + err.Error()
	} else {
		k.status = k.describe()
	}
	return false
}

func (k *console) fader() float64 {
	v, _ := k.c.Get(mixer.FaderKey(0, k.selected, mixer.ParamLevel))
	db, _ := v.Number()
	return db
}

func (k *console) flag(p mixer.Param) bool {
	v, _ := k.c.Get(mixer.ChannelKey(k.selected, p))
	b, _ := v.Flag()
	return b
}

func (k *console) nudgeFader(step float64) error {
	db := k.fader()
	switch {
	case step > 0 && db < faderLowDB:
		db = faderLowDB
	case step < 0 && db <= faderLowDB:
		db = dsp.MinFaderDB
	default:
		db = mixerapp.Clamp(db+step, dsp.MinFaderDB, faderMaxDB)
	}
	return k.c.ApplyUpdate(mixer.FaderUpdate{Bus: 0, Channel: k.selected, Param: mixer.ParamLevel, To: mixer.Number(db)})
}

func (k *console) toggle(p mixer.Param) error {
	return k.c.ApplyUpdate(mixer.ChannelUpdate{Channel: k.selected, Param: p, To: mixer.Flag(!k.flag(p))})
}

func (k *console) describe() string {
	v, _ := k.c.Get(mixer.ChannelKey(k.selected, mixer.ParamName))
	name, _ := v.Text()
	fader := "off"
	if db := k.fader(); db > dsp.MinFaderDB {
		fader = fmt.Sprintf("%+.1f dB", db)
	}
	return fmt.Sprintf("%s (c%d)  master fader %s  mute=%t  pfl=%t",
		name, k.selected, fader, k.flag(mixer.ParamMute), k.flag(mixer.ParamPFL))
}
