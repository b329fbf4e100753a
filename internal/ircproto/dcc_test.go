package ircproto

import "testing"

func TestParseDCCResumeAccept(t *testing.T) {
	text := "\x01DCC ACCEPT movie.avi 5000 12345\x01"
	_, ctcps := SplitCTCP(text)
	if len(ctcps) != 1 {
		t.Fatalf("expected one ctcp, got %d", len(ctcps))
	}
	resume, err := ParseDCCResume(ctcps[0])
	if err != nil {
		t.Fatal(err)
	}
	if resume.Kind != "ACCEPT" || resume.Filename != "movie.avi" || resume.Port != 5000 || resume.Position != 12345 {
		t.Errorf("parsed = %+v", resume)
	}
}

func TestParseDCCResumeRequest(t *testing.T) {
	text := FormatResume("movie.avi", 5000, 12345)
	_, ctcps := SplitCTCP(text)
	if len(ctcps) != 1 {
		t.Fatalf("expected one ctcp, got %d", len(ctcps))
	}
	resume, err := ParseDCCResume(ctcps[0])
	if err != nil {
		t.Fatal(err)
	}
	if resume.Kind != "RESUME" || resume.Filename != "movie.avi" || resume.Port != 5000 || resume.Position != 12345 {
		t.Errorf("parsed = %+v", resume)
	}
}

func TestParseDCCResumeRejectsOffer(t *testing.T) {
	text := "\x01DCC SEND movie.avi 167772165 5000 12345\x01"
	_, ctcps := SplitCTCP(text)
	if _, err := ParseDCCResume(ctcps[0]); err == nil {
		t.Error("expected an error parsing a SEND offer as a resume")
	}
}

func TestFormatAcceptRoundTrip(t *testing.T) {
	text := FormatAccept("movie.avi", 5000, 12345)
	_, ctcps := SplitCTCP(text)
	resume, err := ParseDCCResume(ctcps[0])
	if err != nil {
		t.Fatal(err)
	}
	if resume.Kind != "ACCEPT" {
		t.Errorf("kind = %q", resume.Kind)
	}
}

func TestFormatReject(t *testing.T) {
	got := FormatReject("SEND", "movie.avi")
	want := "\x01DCC REJECT SEND movie.avi\x01"
	if got != want {
		t.Errorf("FormatReject = %q, want %q", got, want)
	}
}
