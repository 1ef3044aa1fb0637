// Package google provides a Google Cloud Speech-to-Text recognition
// provider.
package google

import (
	"context"
	"os"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/service/recognition"
)

// Config holds streaming recognition settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns the standard streaming settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// parseAudioEncoding maps a config string to the wire enum. Unknown
// values fall back to LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Provider implements recognition.Provider using Google Cloud
// Speech-to-Text streaming recognition.
type Provider struct {
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient
	cb     recognition.Callback
	cfg    Config
}

// Available reports whether Google credentials are configured.
func Available() bool {
	return os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""
}

// New creates a Google provider. Requires GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultConfig().LanguageCode
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = DefaultConfig().SampleRateHz
	}
	return &Provider{client: c, cfg: cfg}, nil
}

// ID implements recognition.Provider.
func (p *Provider) ID() string { return recognition.ProviderGoogle }

// Start begins a streaming recognition session, sends the initial
// config, and spawns the receive loop.
func (p *Provider) Start(ctx context.Context, cb recognition.Callback) error {
	stream, err := p.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}
	p.stream = stream
	p.cb = cb

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(p.cfg.AudioEncoding),
					SampleRateHertz: int32(p.cfg.SampleRateHz),
					LanguageCode:    p.cfg.LanguageCode,
				},
				InterimResults: p.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return err
	}

	go p.listen()
	return nil
}

// SendAudio sends audio bytes into the stream.
func (p *Provider) SendAudio(_ context.Context, audio []byte) error {
	return p.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// TranscribeChunk implements recognition.Provider. Google streaming
// recognition has no one-shot path here; callers fall through to the
// streaming handle.
func (p *Provider) TranscribeChunk(_ context.Context, _ []byte) (*models.TranscriptFragment, error) {
	return nil, nil
}

// Close ends the streaming session.
func (p *Provider) Close() error {
	if p.stream != nil {
		return p.stream.CloseSend()
	}
	return nil
}

// listen receives transcript responses and invokes callbacks until the
// stream errors or closes.
func (p *Provider) listen() {
	for {
		resp, err := p.stream.Recv()
		if err != nil {
			p.cb.OnError(err)
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			if r.IsFinal {
				p.cb.OnFinal(alt.Transcript, float64(alt.Confidence))
			} else {
				p.cb.OnPartial(alt.Transcript)
			}
		}
	}
}
