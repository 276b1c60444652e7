package output_device

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"
)

// speakers plays one stream at a time.
// Play starts a monitor routine which closes the player once it drained or Stop was called,
// a second Play before that is refused.
type speakers struct {
	otoContext *oto.Context
	sampleRate int
	channels   int

	mutex    sync.Mutex // protects player and stopping
	player   *oto.Player
	done     *sync.WaitGroup
	stopping bool
}

// NewSpeakers must be called at most once per process, oto allows a single context.
func NewSpeakers(sampleRate int, numChannels int) (AudioOutputDevice, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: numChannels,
		Format:       oto.FormatSignedInt16LE,
	}

	waitStart := time.Now()
	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot open audio device %w", err)
	}
	<-readyChan
	log.Debug().Dur("ready_after", time.Since(waitStart)).Int("sample_rate", sampleRate).Int("channels", numChannels).Msg("speakers ready")

	return &speakers{
		otoContext: otoCtx,
		sampleRate: sampleRate,
		channels:   numChannels,
	}, nil
}

func (s *speakers) Play(pcm io.Reader) (*sync.WaitGroup, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.player != nil {
		return nil, fmt.Errorf("already playing, call Stop first")
	}

	s.done = &sync.WaitGroup{}
	s.done.Add(1)
	s.player = s.otoContext.NewPlayer(pcm)
	s.player.Play()
	go s.monitor(s.player, s.done)

	return s.done, nil
}

func (s *speakers) Stop() error {
	s.mutex.Lock()
	if s.stopping {
		s.mutex.Unlock()
		return fmt.Errorf("playback is already being stopped")
	}
	if s.player == nil {
		s.mutex.Unlock()
		return nil
	}
	s.stopping = true
	s.player.Pause()
	done := s.done
	s.mutex.Unlock()

	done.Wait()
	return nil
}

func (s *speakers) monitor(player *oto.Player, done *sync.WaitGroup) {
	defer done.Done()

	started := time.Now()
	for {
		s.mutex.Lock()
		finished := !player.IsPlaying() || s.stopping
		s.mutex.Unlock()
		if finished {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.mutex.Lock()
	if err := player.Close(); err != nil {
		log.Error().Err(err).Msg("player.Close failed")
	}
	s.player = nil
	s.done = nil
	s.stopping = false
	s.mutex.Unlock()

	log.Debug().Dur("playback_duration", time.Since(started)).Msg("playback done")
}
