package session

import (
	"context"
	"errors"

	"github.com/ent0n29/stemvoice/internal/command"
	"github.com/ent0n29/stemvoice/internal/flow"
	"github.com/ent0n29/stemvoice/internal/library"
	"github.com/ent0n29/stemvoice/internal/observability"
)

const (
	sayPickerOpened  = "Choose your file."
	sayPickerBlocked = "I couldn't open the file picker. Tap the button to choose a file."
)

// apply carries out flow effects for session gen. Called without the lock.
func (c *Controller) apply(gen uint64, effects []flow.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case flow.EffectSpeak:
			if c.speech != nil {
				c.speech.Speak(e.Text)
			}
		case flow.EffectRaise:
			c.bus.Publish(e.Signal)
		case flow.EffectDispatch:
			c.dispatch(e.Command)
		case flow.EffectOpenPicker:
			go c.openPicker(gen, e.Announce)
		case flow.EffectSetPending:
			p := e.Pending
			c.setPending(gen, &p)
		case flow.EffectClearPending:
			c.setPending(gen, nil)
		case flow.EffectPlayAll:
			c.host.PlayAll(e.Song)
		case flow.EffectPlayFile:
			c.host.PlayToggle(library.TrackKey(e.Song.ID, e.Layer.ID), e.File, e.Song)
		case flow.EffectNotify:
			c.host.Notify(e.Level, e.Text)
		case flow.EffectStopSession:
			c.stop(gen, "voice_command", false)
			return
		}
	}
}

func (c *Controller) dispatch(cmd command.Command) {
	switch cmd.Kind {
	case command.KindNavigate:
		c.host.Navigate(cmd.Path)
	case command.KindLogout:
		c.host.Logout()
	case command.KindReload:
		c.host.Reload()
	case command.KindStopAllPlayback:
		c.host.StopAllPlayback()
	case command.KindClearFileSelection:
		c.host.ClearFileSelection()
	case command.KindClearLibrary:
		ctx, cancel := context.WithTimeout(context.Background(), libraryTimeout)
		defer cancel()
		if err := c.library.Clear(ctx); err != nil {
			c.logger.Error().Err(err).Msg("clear song catalog")
			c.host.Notify("error", "Could not clear your library")
			return
		}
		c.host.ClearLibrary()
	default:
		c.logger.Debug().Str("command", string(cmd.Kind)).Msg("command has no host action")
	}
}

func (c *Controller) setPending(gen uint64, p *flow.PendingAction) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.pending = p
	status := c.statusLocked()
	c.mu.Unlock()
	c.host.StateChanged(status)
}

// openPicker asks the host for the file picker and reports back for gen.
// A blocked picker leaves a tap affordance behind.
func (c *Controller) openPicker(gen uint64, announce bool) {
	ctx, cancel := context.WithTimeout(context.Background(), pickerTimeout)
	defer cancel()
	err := c.host.OpenFilePicker(ctx)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	blocked := err != nil
	if blocked {
		c.pending = &flow.PendingAction{Kind: flow.PendingUpload, Label: flow.UploadLabel}
	}
	status := c.statusLocked()
	c.mu.Unlock()

	if blocked {
		if !errors.Is(err, ErrPickerBlocked) {
			c.logger.Warn().Err(err).Msg("file picker failed")
		}
		c.metrics.ObserveIndicator(observability.IndicatorPickerBlocked)
		c.host.StateChanged(status)
		if announce && c.speech != nil {
			c.speech.Speak(sayPickerBlocked)
		}
		return
	}
	if announce && c.speech != nil {
		c.speech.Speak(sayPickerOpened)
	}
}
