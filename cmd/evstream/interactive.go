package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/urfave/cli/v2"

	"github.com/capatazlib/go-evstream/inspect"
	"github.com/capatazlib/go-evstream/inspect/api"
)

const (
	fgDefault string = "\033[0;0m"
	fgRed     string = "\033[1;31m"

	defaultRefresh = 2 * time.Second
	watchHistory   = 100
)

// UI represents an interactive UI
type UI struct {
	client          *inspect.Client
	streams         []api.Stream
	history         api.History
	selected        string
	fetchErr        error
	g               *gocui.Gui
	refreshInterval time.Duration
	refresh         chan (interface{})
}

func (ui *UI) loop(ctx context.Context) {
	t := time.NewTicker(ui.refreshInterval)
	defer t.Stop()
	ui.g.Update(ui.fetchAndUpdate(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ui.refresh:
			ui.g.Update(ui.fetchAndUpdate(ctx))
		case <-t.C:
			ui.g.Update(ui.fetchAndUpdate(ctx))
		}
	}
}

func (ui *UI) fetch(ctx context.Context) error {
	streams, err := ui.client.ListStreams(ctx)
	if err != nil {
		return err
	}
	ui.streams = streams.Streams

	if ui.selected == "" && len(ui.streams) > 0 {
		ui.selected = ui.streams[0].Name
	}
	if ui.selected == "" {
		ui.history = api.History{}
		return nil
	}
	history, err := ui.client.History(ctx, ui.selected, watchHistory)
	if err != nil {
		return err
	}
	ui.history = history
	return nil
}

func interactive(c *cli.Context) error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return errorf("something went wrong: %s", err)
	}
	defer g.Close()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	ui := &UI{
		client:          inspect.NewClient(hostname, nil),
		g:               g,
		refreshInterval: c.Duration("refresh"),
		refresh:         make(chan interface{}, 1),
	}

	go ui.loop(ctx)

	g.Cursor = true
	g.SetManagerFunc(ui.layout)

	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return err
	}
	if err := g.SetKeybinding("", 'q', gocui.ModNone, quit); err != nil {
		return err
	}

	lnUpAct := func(cg *gocui.Gui, v *gocui.View) error {
		v.MoveCursor(0, -1, false)
		return nil
	}
	lnDownAct := func(cg *gocui.Gui, v *gocui.View) error {
		v.MoveCursor(0, 1, false)
		return nil
	}
	selectAct := func(cg *gocui.Gui, v *gocui.View) error {
		_, y := v.Cursor()
		_, yy := v.Origin()
		n := y + yy
		if n >= len(ui.streams) {
			// Cursor is below bottom of the list
			return nil
		}
		ui.selected = ui.streams[n].Name
		ui.requestRefresh()
		return nil
	}
	bindings := []struct {
		key interface{}
		fn  func(*gocui.Gui, *gocui.View) error
	}{
		{gocui.KeyArrowUp, lnUpAct},
		{gocui.KeyArrowDown, lnDownAct},
		{'k', lnUpAct},
		{'j', lnDownAct},
		{gocui.KeySpace, selectAct},
		{gocui.KeyEnter, selectAct},
		{'r', func(cg *gocui.Gui, v *gocui.View) error {
			ui.requestRefresh()
			return nil
		}},
	}
	for _, b := range bindings {
		if err := g.SetKeybinding("streams", b.key, gocui.ModNone, b.fn); err != nil {
			return err
		}
	}

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		return errorf("something went wrong: %s", err)
	}

	return nil
}

// requestRefresh asks the loop to fetch again, dropping the request when one
// is already pending
func (ui *UI) requestRefresh() {
	select {
	case ui.refresh <- struct{}{}:
	default:
	}
}

func (ui *UI) layout(g *gocui.Gui) error {
	// Draw three boxes:
	// +-----------------------+
	// |           top         |
	// +---+-------------------|
	// | s |                   |
	// | t |                   |
	// | r |      history      |
	// | e |                   |
	// | a |                   |
	// +---+-------------------+
	maxX, maxY := g.Size()

	if _, err := g.SetView("top", -1, -1, maxX, 3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
	}
	if v, err := g.SetView("streams", -1, 3, 40, maxY); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "streams"
	}
	if v, err := g.SetView("history", 40, 3, maxX, maxY); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "history"
		v.Autoscroll = true
	}
	if _, err := g.SetCurrentView("streams"); err != nil {
		return err
	}
	return ui.update(g)
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

func (ui *UI) fetchAndUpdate(ctx context.Context) func(*gocui.Gui) error {
	return func(g *gocui.Gui) error {
		// fetch errors are displayed, the inspector may come back later
		ui.fetchErr = ui.fetch(ctx)
		return ui.update(g)
	}
}

func (ui *UI) update(g *gocui.Gui) error {
	v, _ := g.View("top")
	v.Clear()
	fmt.Fprintln(v, `"q" or CTRL-C to quit`)
	fmt.Fprintf(v, "\"r\" to refresh (auto refresh every %s)\n", ui.refreshInterval.String())
	if ui.fetchErr != nil {
		fmt.Fprintln(v, red(ui.fetchErr.Error()))
	} else {
		fmt.Fprintln(v, `SPACE to show the history of a stream`)
	}

	v, _ = g.View("streams")
	v.Clear()
	if ui.streams == nil {
		fmt.Fprintln(v, "Fetching...")
	} else {
		for _, s := range ui.streams {
			closed := ""
			if s.Closed {
				closed = red("closed")
			}
			fmt.Fprintf(v, "%s\t%d\t%s\n", s.Name, s.Appended, closed)
		}
	}

	v, _ = g.View("history")
	v.Clear()
	v.Title = "history " + ui.history.Name
	for _, ev := range ui.history.Events {
		fmt.Fprintln(v, ev)
	}
	return nil
}

func red(s string) string {
	return fmt.Sprintf("%s%s%s", fgRed, s, fgDefault)
}
