package embed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/contest-remind-bot/internal/contest"
	"github.com/flor3z/contest-remind-bot/internal/storage"
)

const (
	ColorInfo    = 0x3498DB
	ColorSuccess = 0x2ECC71
	ColorAlert   = 0xE74C3C
	ColorNeutral = 0x95A5A6

	// ContestsPerPage is how many contests go in one list embed
	ContestsPerPage = 5

	// GoodLuck replaces the final-call ping once the contest starts
	GoodLuck = "GLHF!"

	enSpace    = "\u2002"
	rareFooter = "Its once in a while contest, you wouldn't wanna miss 👀"
)

var (
	linkPattern  = regexp.MustCompile(`\]\((http[^)]+)\)`)
	startPattern = regexp.MustCompile(`<t:(\d+):[A-Za-z]>`)
)

// TimeParts splits seconds into days, hours, minutes and seconds using floor division
func TimeParts(seconds int64) (days, hours, minutes, secs int64) {
	if seconds < 0 {
		seconds = 0
	}
	days, seconds = seconds/86400, seconds%86400
	hours, seconds = seconds/3600, seconds%3600
	minutes, secs = seconds/60, seconds%60
	return days, hours, minutes, secs
}

// FormatBefore renders a lead time such as "1 day 2 hrs 1 min"
func FormatBefore(seconds int64) string {
	d, h, m, s := TimeParts(seconds)
	labels := []string{"day", "hr", "min", "sec"}
	values := []int64{d, h, m, s}

	var parts []string
	for i, v := range values {
		if v == 0 {
			continue
		}
		part := fmt.Sprintf("%d %s", v, labels[i])
		if v != 1 {
			part += "s"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

// StartingIn is the reminder headline for a lead time
func StartingIn(seconds int64) string {
	before := FormatBefore(seconds)
	if before == "" {
		return "Starting now!"
	}
	return fmt.Sprintf("About to start in %s!", before)
}

// FormatDuration renders a contest length as "2h 30m" or "1d 0h 0m"
func FormatDuration(d time.Duration) string {
	days, hours, minutes, _ := TimeParts(int64(d / time.Second))
	out := fmt.Sprintf("%dh %dm", hours, minutes)
	if days > 0 {
		out = fmt.Sprintf("%dd ", days) + out
	}
	return out
}

// FieldValue is the start/duration/link line shown for a contest
func FieldValue(c contest.Contest) string {
	start := fmt.Sprintf("<t:%d:F>", c.Start.Unix())
	return fmt.Sprintf("%s\nDuration:%s%s%s|%s[link](%s)", start, enSpace, FormatDuration(c.Duration), enSpace, enSpace, c.URL)
}

// Field builds the embed field for a contest
func Field(c contest.Contest) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{
		Name:   c.DisplayName(),
		Value:  FieldValue(c),
		Inline: false,
	}
}

// Reminder builds the scheduled reminder embed
func Reminder(c contest.Contest, beforeSeconds int64) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Description: StartingIn(beforeSeconds),
		Color:       ColorInfo,
		Fields:      []*discordgo.MessageEmbedField{Field(c)},
	}
	if c.Rare {
		e.Footer = &discordgo.MessageEmbedFooter{Text: rareFooter}
	}
	return e
}

// ReminderContent is the message text that pings the reminder role
func ReminderContent(roleID string, c contest.Contest) string {
	site := c.Prefix
	if site == "" {
		site = c.Website
	}
	return fmt.Sprintf("<@&%s> Its %s time!", roleID, site)
}

// FinalCall rebuilds the ping embed from a frozen snapshot
func FinalCall(s storage.Snapshot, leadMinutes int) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Description: StartingIn(int64(leadMinutes) * 60),
		Color:       ColorInfo,
	}
	for _, f := range s.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	return e
}

// FinalCallContent is the text that pings the final-call role
func FinalCallContent(roleID string) string {
	return fmt.Sprintf("<@&%s> %s", roleID, GoodLuck)
}

// Snapshot freezes a reminder embed, recovering the contest link and start from its first field
func Snapshot(e *discordgo.MessageEmbed) (storage.Snapshot, error) {
	if e == nil || len(e.Fields) == 0 {
		return storage.Snapshot{}, fmt.Errorf("embed has no contest field")
	}
	first := e.Fields[0]

	link := linkPattern.FindStringSubmatch(first.Value)
	if link == nil {
		return storage.Snapshot{}, fmt.Errorf("embed has no contest link")
	}
	start := startPattern.FindStringSubmatch(first.Value)
	if start == nil {
		return storage.Snapshot{}, fmt.Errorf("embed has no start time")
	}
	unix, err := strconv.ParseInt(start[1], 10, 64)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("invalid start time: %w", err)
	}

	s := storage.Snapshot{
		Name:        first.Name,
		URL:         link[1],
		Start:       time.Unix(unix, 0).UTC(),
		Description: e.Description,
	}
	for _, f := range e.Fields {
		s.Fields = append(s.Fields, storage.Field{Name: f.Name, Value: f.Value})
	}
	return s, nil
}

// ContestList pages contests into embeds of ContestsPerPage
func ContestList(contests []contest.Contest, title string) []*discordgo.MessageEmbed {
	var pages []*discordgo.MessageEmbed
	for i := 0; i < len(contests); i += ContestsPerPage {
		end := i + ContestsPerPage
		if end > len(contests) {
			end = len(contests)
		}
		e := &discordgo.MessageEmbed{Title: title, Color: ColorInfo}
		for _, c := range contests[i:end] {
			e.Fields = append(e.Fields, Field(c))
		}
		pages = append(pages, e)
	}
	total := len(pages)
	for i, e := range pages {
		e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Page %d / %d", i+1, total)}
	}
	return pages
}

func Success(desc string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Description: desc, Color: ColorSuccess}
}

func Alert(desc string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Description: desc, Color: ColorAlert}
}

func Neutral(desc string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Description: desc, Color: ColorNeutral}
}
