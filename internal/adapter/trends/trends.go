// Package trends answers questions about Thai social media trends and
// sentiment, either through a web search API or a search-grounded model.
package trends

import (
	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/logging"
)

// Version is the backend implementation version.
const Version = "1.0.0"

func init() {
	logger := logging.GetLogger("adapter.trends")
	if err := adapter.RegisterFactory(SearchType, NewSearchInstance); err != nil {
		logger.Warn("Failed to register %s factory: %v", SearchType, err)
	}
	if err := adapter.RegisterFactory(GroundedType, NewGroundedInstance); err != nil {
		logger.Warn("Failed to register %s factory: %v", GroundedType, err)
	}
}

const socialListeningSystem = `You are a social listening analyst for the Thai market.
Primary sources are Facebook, YouTube, TikTok and Pantip (pantip.com). X (Twitter) is a secondary source, mainly for Gen Z topics.
Prioritize Thai-language content and the most recent posts. Never rely on training data for trends.
Report trending topics, the overall sentiment (positive, negative, neutral or mixed) and what drives it.`
