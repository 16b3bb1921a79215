// Package notify pushes operational escalations to Slack. Optional: with
// no bot token configured the notifier is a no-op.
package notify

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// BotAPI abstracts the Slack API client for testing.
type BotAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts escalations to a single ops channel.
type Notifier struct {
	api     BotAPI
	channel string
	logger  zerolog.Logger
}

// NewNotifier creates a Slack notifier. An empty token returns a disabled
// notifier whose methods are safe no-ops.
func NewNotifier(botToken, channel string, logger zerolog.Logger) *Notifier {
	n := &Notifier{
		channel: channel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
	if botToken != "" {
		n.api = slack.New(botToken)
	}
	return n
}

// newWithAPI is the test seam.
func newWithAPI(api BotAPI, channel string, logger zerolog.Logger) *Notifier {
	return &Notifier{api: api, channel: channel, logger: logger}
}

// Enabled reports whether a Slack client is configured.
func (n *Notifier) Enabled() bool { return n.api != nil }

// ProjectStalled reports a project waiting on user answers for longer
// than expected.
func (n *Notifier) ProjectStalled(projectID string, openQuestions int) {
	n.post(fmt.Sprintf(":hourglass: project `%s` is waiting on %d unanswered question(s)", projectID, openQuestions))
}

// ProjectReady reports a project clearing the readiness threshold.
func (n *Notifier) ProjectReady(projectID string, confidence int) {
	n.post(fmt.Sprintf(":white_check_mark: project `%s` is implementation-ready (confidence %d)", projectID, confidence))
}

// AnalysisFailed reports an analysis pass that errored out.
func (n *Notifier) AnalysisFailed(projectID string, err error) {
	n.post(fmt.Sprintf(":warning: analysis failed for project `%s`: %v", projectID, err))
}

func (n *Notifier) post(text string) {
	if n.api == nil {
		return
	}
	_, _, err := n.api.PostMessage(n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn().Err(err).Msg("slack post failed")
	}
}
