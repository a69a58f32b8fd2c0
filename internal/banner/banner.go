// Package banner fingerprints an SMTP greeting banner into an MTA family
// and capability set.
package banner

import "strings"

// MTAInfo describes the capabilities inferred from an SMTP banner.
type MTAInfo struct {
	Family           string
	SupportsTiming   bool
	SupportsQueueID  bool
	TimingVariance   float64
	Banner           string
}

type pattern struct {
	family   string
	keywords []string
	timing   bool
	queueID  bool
	variance float64
}

// patterns is checked in order; the first keyword match wins.
var patterns = []pattern{
	{family: "postfix", keywords: []string{"postfix"}, timing: true, queueID: true, variance: 0.3},
	{family: "exchange", keywords: []string{"exchange", "microsoft"}, timing: false, queueID: true, variance: 0.1},
	{family: "mimecast", keywords: []string{"mimecast"}, timing: false, queueID: false, variance: 0.0},
	{family: "sendgrid", keywords: []string{"sendgrid"}, timing: false, queueID: true, variance: 0.0},
	{family: "google", keywords: []string{"google", "aspmx"}, timing: true, queueID: false, variance: 0.2},
}

// Fingerprint maps a banner string to MTAInfo via a case-insensitive,
// ordered keyword match. An empty or unrecognized banner returns the
// unknown family with permissive capability flags.
func Fingerprint(bannerText string) MTAInfo {
	if bannerText == "" {
		return unknown(bannerText)
	}

	lower := strings.ToLower(bannerText)
	for _, p := range patterns {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				return MTAInfo{
					Family:          p.family,
					SupportsTiming:  p.timing,
					SupportsQueueID: p.queueID,
					TimingVariance:  p.variance,
					Banner:          bannerText,
				}
			}
		}
	}
	return unknown(bannerText)
}

func unknown(bannerText string) MTAInfo {
	return MTAInfo{
		Family:          "unknown",
		SupportsTiming:  true,
		SupportsQueueID: true,
		TimingVariance:  0.4,
		Banner:          bannerText,
	}
}
