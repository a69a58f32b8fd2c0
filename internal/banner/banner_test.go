package banner

import "testing"

func TestFingerprintOrderedMatch(t *testing.T) {
	cases := map[string]string{
		"220 mail.example.com ESMTP Postfix":      "postfix",
		"220 mail.example.com Microsoft ESMTP MAIL Service": "exchange",
		"220 mx.mimecast.com ESMTP service ready":  "mimecast",
		"220 sendgrid.net ESMTP":                   "sendgrid",
		"220 mx.google.com ESMTP":                   "google",
		"220 aspmx.l.google.com ESMTP":               "google",
		"":                                          "unknown",
		"220 somehost.example ESMTP unrecognized":   "unknown",
	}
	for in, want := range cases {
		got := Fingerprint(in).Family
		if got != want {
			t.Errorf("Fingerprint(%q).Family = %q, want %q", in, got, want)
		}
	}
}

func TestFingerprintUnknownIsPermissive(t *testing.T) {
	info := Fingerprint("220 mystery-mta ready")
	if !info.SupportsTiming || !info.SupportsQueueID || info.TimingVariance != 0.4 {
		t.Errorf("unknown MTA info = %+v, want permissive defaults", info)
	}
}
