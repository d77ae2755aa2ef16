package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	gatt "github.com/XC-/blegatt"
	"github.com/XC-/blegatt/bluez"
)

// devicePath returns the BlueZ object path of the device at addr,
// e.g. /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func devicePath(adapter, addr string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, strings.Replace(strings.ToUpper(addr), ":", "_", -1)))
}

func discover(c *cli.Context) error {
	if c.String("addr") == "" {
		return errors.New("--addr is required")
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return errors.Wrap(err, "system bus")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	log := logrus.StandardLogger()
	d := bluez.New(conn, log)
	p := gatt.NewPeer(d,
		gatt.PeerLogger(log),
		gatt.Notified(func(ch *gatt.Characteristic, b []byte) {
			fmt.Printf("%s %s\n", color.HiMagentaString("%-40s", ch), formatValue(b))
		}),
	)
	defer p.Disconnect()

	if err := bluez.Discover(ctx, d, p, devicePath(c.String("adapter"), c.String("addr"))); err != nil {
		return err
	}
	for _, s := range p.Services() {
		start, end := s.Handles()
		fmt.Printf("%s [0x%04x-0x%04x]\n", color.HiCyanString("%s", s), start, end)
		for _, ch := range s.Characteristics() {
			fmt.Printf("  %s 0x%04x %s %s\n", color.HiGreenString("%s", ch), ch.ValueHandle(), ch.Properties(), formatValue(ch.Value()))
			for _, desc := range ch.Descriptors() {
				fmt.Printf("    %s %s\n", color.HiYellowString("%s", desc), formatValue(desc.Value()))
			}
		}
	}
	if !c.Bool("watch") {
		return nil
	}

	for _, s := range p.Services() {
		for _, ch := range s.Characteristics() {
			if ch.Properties().Subscribable() {
				if err := ch.SetCCCD(ch.Properties().Has(gatt.CharNotify), !ch.Properties().Has(gatt.CharNotify)); err != nil {
					return err
				}
			}
		}
	}
	if err := p.Flush(ctx); err != nil {
		return err
	}
	if err := d.Watch(ctx, p); err != nil && errors.Cause(err) != context.Canceled {
		return err
	}
	return nil
}
