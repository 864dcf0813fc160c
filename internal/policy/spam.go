package policy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// chatTitleSpamTerms flags promo/crypto/gambling surfaces by chat title,
// matched as case-insensitive substrings. Distinct from messageSpamMarkers;
// titles and message bodies spam differently.
var chatTitleSpamTerms = []string{
	"airdrop",
	"giveaway",
	"free crypto",
	"crypto",
	"bitcoin",
	"altcoin",
	"shitcoin",
	"memecoin",
	"token sale",
	"presale",
	"whitelist spot",
	"nft drop",
	"mint now",
	"defi",
	"yield farm",
	"staking rewards",
	"pump",
	"dump",
	"signals",
	"moonshot",
	"to the moon",
	"100x",
	"1000x",
	"lambo",
	"hodl",
	"binance",
	"bybit",
	"okx",
	"trading group",
	"traders club",
	"forex",
	"day trade",
	"futures club",
	"profit",
	"passive income",
	"get rich",
	"easy money",
	"free money",
	"cash out",
	"payout proof",
	"investment club",
	"investors chat",
	"earn daily",
	"casino",
	"jackpot",
	"lottery",
	"betting tips",
	"sports bets",
	"poker",
	"roulette",
	"aviator",
	"1xbet",
	"1win",
	"vip access",
	"insider calls",
	"leaked course",
	"onlyfans",
	"dating girls",
	"followers boost",
	"subscriber boost",
	"mass dm",
	"bulk sms",
}

// messageSpamMarkers flags pump/promo message bodies.
var messageSpamMarkers = []string{
	"100x",
	"1000x",
	"guaranteed profit",
	"profit guaranteed",
	"risk free",
	"double your money",
	"join now",
	"limited slots",
	"limited spots",
	"dm me to earn",
	"hurry up",
	"act fast",
	"last chance",
	"click the link",
	"investment opportunity",
	"crypto signals",
	"pump group",
}

// emojiRanges covers the common emoji blocks counted by SpamText.
var emojiRanges = [][2]rune{
	{0x1F1E6, 0x1F1FF}, // regional indicators (flags)
	{0x1F300, 0x1F5FF}, // symbols and pictographs
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F680, 0x1F6FF}, // transport
	{0x1F900, 0x1F9FF}, // supplemental symbols
	{0x1FA70, 0x1FAFF}, // extended symbols
	{0x2600, 0x26FF},   // misc symbols
	{0x2700, 0x27BF},   // dingbats
	{0x2B00, 0x2BFF},   // arrows, stars
}

// SpamText reports whether message text trips the spam heuristic: a known
// marker, more than SpamEmojiMax emoji runes, or mostly-capitals text
// longer than SpamCapsMinLen runes. Exactly SpamEmojiMax emoji or a caps
// ratio of exactly one half stay clean; text without letters never trips
// the caps rule.
func SpamText(text string) bool {
	if text == "" {
		return false
	}

	lower := strings.ToLower(text)
	for _, marker := range messageSpamMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	if countEmoji(text) > SpamEmojiMax {
		return true
	}

	if utf8.RuneCountInString(text) > SpamCapsMinLen {
		letters, upper := 0, 0
		for _, r := range text {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					upper++
				}
			}
		}
		if letters > 0 && upper*2 > letters {
			return true
		}
	}

	return false
}

// SpamTitle reports whether a chat title matches the built-in title list.
func SpamTitle(title string) bool {
	if title == "" {
		return false
	}
	lower := strings.ToLower(title)
	for _, term := range chatTitleSpamTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func countEmoji(s string) int {
	n := 0
	for _, r := range s {
		for _, rg := range emojiRanges {
			if r >= rg[0] && r <= rg[1] {
				n++
				break
			}
		}
	}
	return n
}
