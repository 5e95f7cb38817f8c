package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"

	"diagnostic-trainer/internal/training"
)

var ErrFontUnavailable = errors.New("no usable TTF font for PDF output")

// DefaultFontPaths are the usual DejaVu locations on Alpine and Debian images.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

// Service renders session debriefs and sends them to the instructor chat.
type Service struct {
	tgClient         TelegramClient
	instructorChatID int64
	fontPaths        []string
	log              zerolog.Logger
}

func NewService(tg TelegramClient, instructorChatID int64, logger zerolog.Logger) *Service {
	return &Service{
		tgClient:         tg,
		instructorChatID: instructorChatID,
		fontPaths:        DefaultFontPaths,
		log:              logger.With().Str("module", "report").Logger(),
	}
}

type line struct {
	size float64
	text string
	gap  float64
}

func heading(text string) line { return line{size: 14, text: text, gap: 18} }
func body(text string) line    { return line{size: 11, text: text, gap: 14} }

// debriefLines lays out the report content independent of PDF rendering.
func debriefLines(d *training.Debrief) []line {
	p := d.Patient
	out := []line{
		{size: 20, text: "Diagnostic Training Debrief", gap: 30},
		body(fmt.Sprintf("Case: %s (%s)", d.CaseTitle, d.CaseID)),
		body(fmt.Sprintf("Started: %s", d.StartedAt.Format("02.01.2006 15:04"))),
		body(fmt.Sprintf("Patient: %s, %d, %s", p.Name, p.Age, p.Gender)),
		body(fmt.Sprintf("Chief complaint: %s", p.ChiefComplaint)),
		{gap: 10},
	}

	if o := d.Outcome; o != nil {
		verdict := "Incorrect"
		if o.Correct {
			verdict = "Correct"
		}
		out = append(out,
			heading("Result"),
			body(fmt.Sprintf("Submitted diagnosis: %s (confidence %d/5)", o.Diagnosis, o.Confidence)),
			body(fmt.Sprintf("Verdict: %s, graded %s", verdict, o.GradedBy)),
			body(fmt.Sprintf("Actual diagnosis: %s", o.ActualDiagnosis)),
			body(fmt.Sprintf("Time: %s", o.Elapsed)),
			body(fmt.Sprintf("Score: %d before submission, +%d time, +%d accuracy, final %d",
				o.ScoreBefore, o.TimeBonus, o.AccuracyBonus, o.FinalScore)),
			body(o.Feedback),
			line{gap: 10},
		)
	}

	out = append(out, heading(fmt.Sprintf("Information requested (%d)", d.RequestsMade)))
	if len(d.Revealed)+len(d.Ordered) == 0 {
		out = append(out, body("- Nothing was requested."))
	}
	for _, f := range d.Revealed {
		out = append(out, body(fmt.Sprintf("- [%s] %s: %s", f.Category, f.Item, f.Value)))
	}
	for _, f := range d.Ordered {
		out = append(out, body(fmt.Sprintf("- [%s] %s: %s", f.Category, f.Item, f.Value)))
	}

	if len(d.Differentials) > 0 {
		out = append(out, line{gap: 10}, heading("Differentials"))
		for _, dd := range d.Differentials {
			out = append(out, body("- "+dd))
		}
	}
	return out
}

// Summary is the short chat message that accompanies the PDF.
func Summary(d *training.Debrief) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Training session finished: %s\n", d.CaseTitle)
	if o := d.Outcome; o != nil {
		fmt.Fprintf(&b, "Diagnosis: %s (confidence %d/5)\n", o.Diagnosis, o.Confidence)
		if o.Correct {
			b.WriteString("Result: correct\n")
		} else {
			fmt.Fprintf(&b, "Result: incorrect, actual %s\n", o.ActualDiagnosis)
		}
		fmt.Fprintf(&b, "Final score: %d in %s\n", o.FinalScore, o.Elapsed)
	}
	fmt.Fprintf(&b, "Requests made: %d", d.RequestsMade)
	return b.String()
}

func (s *Service) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err != nil {
			lastErr = err
			continue
		}
		s.log.Debug().Str("path", path).Msg("loaded PDF font")
		return nil
	}
	return fmt.Errorf("%w: %v", ErrFontUnavailable, lastErr)
}

// Render produces the debrief as an A4 PDF.
func (s *Service) Render(d *training.Debrief) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := s.loadFont(&pdf); err != nil {
		return nil, err
	}

	const (
		width  = 500
		bottom = 800
	)
	for _, l := range debriefLines(d) {
		if l.text == "" {
			pdf.Br(l.gap)
			continue
		}
		if err := pdf.SetFont("DejaVu", "", l.size); err != nil {
			return nil, err
		}
		parts, err := pdf.SplitText(l.text, width)
		if err != nil {
			parts = []string{l.text}
		}
		for _, p := range parts {
			if pdf.GetY() > bottom {
				pdf.AddPage()
			}
			pdf.Cell(nil, p)
			pdf.Br(l.gap)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Deliver sends the summary and the PDF to the instructor chat. It is a
// no-op when no chat is configured.
func (s *Service) Deliver(ctx context.Context, d *training.Debrief) error {
	if s.tgClient == nil || s.instructorChatID == 0 {
		return nil
	}

	msgErr := s.tgClient.SendMessage(ctx, s.instructorChatID, Summary(d))
	if msgErr != nil {
		s.log.Error().Err(msgErr).Int64("chat_id", s.instructorChatID).Msg("failed to send debrief summary")
	}

	pdf, err := s.Render(d)
	if err != nil {
		return errors.Join(msgErr, err)
	}
	fileName := fmt.Sprintf("debrief_%s.pdf", d.ID)
	s.log.Info().Int64("chat_id", s.instructorChatID).Str("file", fileName).Msg("sending debrief PDF")
	return errors.Join(msgErr, s.tgClient.SendDocument(ctx, s.instructorChatID, pdf, fileName))
}
