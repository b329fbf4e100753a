package bouncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextGeneratedNickSequence(t *testing.T) {
	nick := "abcdefghi"
	want := []string{
		"abcdefgh-", "abcdefgh0", "abcdefgh1", "abcdefgh2", "abcdefgh3",
		"abcdefgh4", "abcdefgh5", "abcdefgh6", "abcdefgh7", "abcdefgh8",
		"abcdefgh9", "abcdefgh_", "abcdefg--",
	}
	for _, w := range want {
		nick = NextGeneratedNick(nick)
		assert.Equal(t, w, nick)
	}
}

func TestNextGeneratedNickGrowsShortNames(t *testing.T) {
	assert.Equal(t, "abc-", NextGeneratedNick("abc"))
}

func TestNextGeneratedNickEventuallyFallsBack(t *testing.T) {
	nick := "_________" // fully exhausted at every position
	got := NextGeneratedNick(nick)
	assert.Equal(t, FallbackNick, got)
}

func TestSubstituteDetachNickname(t *testing.T) {
	assert.Equal(t, "away_alice", SubstituteDetachNickname("away_*", "alice"))
	assert.Equal(t, "zzz", SubstituteDetachNickname("zzz", "alice"))
	assert.Equal(t, "alice", SubstituteDetachNickname("", "alice"))
}
