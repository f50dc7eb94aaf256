// Package review implements the completion-backed passes of the harvest
// workflow: locating controls in a page snapshot, extracting review records,
// and analyzing the extracted reviews. All three scan their input in bounded
// chunks so arbitrarily large pages fit the completion model's context.
package review

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Defaults tuned against review pages of a few hundred entries.
const (
	DefaultChunkSize         = 12000
	DefaultExtractionOverlap = 400
	DefaultPacing            = 10 * time.Second
	DefaultAnalysisChunkSize = 30
	DefaultAnalysisOverlap   = 5
)

// Review is one extracted user review.
type Review struct {
	Reviewer       string `json:"reviewer"`
	Rating         string `json:"rating"`
	Date           string `json:"date"`
	Text           string `json:"text"`
	DeveloperReply string `json:"developer_reply,omitempty"`
}

// identityKey derives the dedup key for a review: the normalized review
// text, or a hash of the remaining fields when the text is empty.
func identityKey(r Review) string {
	text := strings.Join(strings.Fields(strings.ToLower(r.Text)), " ")
	if text != "" {
		return text
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{r.Reviewer, r.Rating, r.Date, r.DeveloperReply}, "\x1f")))
	return hex.EncodeToString(sum[:])
}
