// rotctl is a command line tool for rotary platforms on RS-232.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/theckman/yacspin"

	"github.com/opticslab/scpikit/rotary"
	"github.com/opticslab/scpikit/scpi"
	"github.com/opticslab/scpikit/util"
)

func usage() {
	str := `rotctl drives a rotary platform from the command line

Usage:
	rotctl [-addr /dev/ttyUSB0] [-mock] [-poll 0.1] <command>

Commands:
	home
	move <degrees>
	rel <degrees>
	pos
	velocity <deg/s>
	stop
	enable
	disable
	errors`
	fmt.Println(str)
}

// platform is the subset of the driver the tool needs, so -mock can swap
// in the simulator
type platform interface {
	Home() error
	MoveAbs(float64) error
	MoveRel(float64) error
	GetPos() (float64, error)
	SetVelocity(float64) (scpi.SetStatus, error)
	Stop() error
	InPosition() (bool, error)
	SetEnabled(bool) (scpi.SetStatus, error)
	ReadError() error
}

func spinUntilSettled(p platform, poll time.Duration) error {
	cfg := yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " moving",
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	}
	spinner, err := yacspin.New(cfg)
	if err != nil {
		return err
	}
	spinner.Start()
	for {
		done, err := p.InPosition()
		if err != nil {
			spinner.StopFail()
			return err
		}
		if done {
			break
		}
		if pos, err := p.GetPos(); err == nil {
			spinner.Message(fmt.Sprintf("%.3f deg", pos))
		}
		time.Sleep(poll)
	}
	pos, err := p.GetPos()
	if err != nil {
		spinner.StopFail()
		return err
	}
	spinner.StopMessage(fmt.Sprintf("settled at %.3f deg", pos))
	spinner.Stop()
	return nil
}

func parseDegrees(args []string) float64 {
	if len(args) == 0 {
		log.Fatal("missing angle argument")
	}
	f, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		log.Fatalf("could not parse %q as an angle: %v", args[0], err)
	}
	return f
}

func main() {
	addr := flag.String("addr", "/dev/ttyUSB0", "serial port the platform is connected to")
	mock := flag.Bool("mock", false, "drive an in-memory simulation instead of hardware")
	pollSecs := flag.Float64("poll", 0.1, "seconds between in-position checks while a move settles")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		return
	}
	poll := util.SecsToDuration(*pollSecs)

	var rp platform
	if *mock {
		rp = rotary.NewMockRP100(*addr)
	} else {
		rp = rotary.NewRP100(*addr)
	}

	var err error
	switch args[0] {
	case "home":
		if err = rp.Home(); err == nil {
			err = spinUntilSettled(rp, poll)
		}
	case "move":
		if err = rp.MoveAbs(parseDegrees(args[1:])); err == nil {
			err = spinUntilSettled(rp, poll)
		}
	case "rel":
		if err = rp.MoveRel(parseDegrees(args[1:])); err == nil {
			err = spinUntilSettled(rp, poll)
		}
	case "pos":
		var pos float64
		if pos, err = rp.GetPos(); err == nil {
			fmt.Printf("%.3f\n", pos)
		}
	case "velocity":
		_, err = rp.SetVelocity(parseDegrees(args[1:]))
	case "stop":
		err = rp.Stop()
	case "enable":
		_, err = rp.SetEnabled(true)
	case "disable":
		_, err = rp.SetEnabled(false)
	case "errors":
		err = rp.ReadError()
		if err == nil {
			fmt.Println("no errors")
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}
