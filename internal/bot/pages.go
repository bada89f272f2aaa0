package bot

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/pagebot/internal/paginator"
)

const embedColor = 0x5865F2

var medals = map[int]string{1: "🥇", 2: "🥈", 3: "🥉"}

func chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

// LeaderboardPages renders standings as one embed per pageSize entries.
// note, if set, is appended to every footer.
func LeaderboardPages(title string, standings []Standing, pageSize int, note string) []paginator.Page {
	chunks := chunk(standings, pageSize)
	pages := make([]paginator.Page, 0, len(chunks))
	for i, c := range chunks {
		var desc strings.Builder
		for _, s := range c {
			prefix := medals[s.Rank]
			if prefix == "" {
				prefix = "▫️"
			}
			fmt.Fprintf(&desc, "%s **#%d** <@%s> · %s", prefix, s.Rank, s.Score.UserID, pointsLabel(s.Score.Points))
			if s.Tied {
				desc.WriteString(" (tied)")
			}
			desc.WriteByte('\n')
		}
		footer := fmt.Sprintf("Page %d/%d", i+1, len(chunks))
		if note != "" {
			footer += " · " + note
		}
		pages = append(pages, paginator.Page{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       title,
				Description: desc.String(),
				Color:       embedColor,
				Footer:      &discordgo.MessageEmbedFooter{Text: footer},
			}},
		})
	}
	return pages
}

// LeaderboardCSV returns one CSV attachment per page, matching LeaderboardPages.
func LeaderboardCSV(standings []Standing, pageSize int) ([][]paginator.Attachment, error) {
	chunks := chunk(standings, pageSize)
	out := make([][]paginator.Attachment, 0, len(chunks))
	for i, c := range chunks {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"rank", "user_id", "username", "points"})
		for _, s := range c {
			_ = w.Write([]string{
				strconv.Itoa(s.Rank),
				s.Score.UserID,
				s.Score.Username,
				strconv.FormatInt(s.Score.Points, 10),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("failed to write csv page %d: %w", i+1, err)
		}
		out = append(out, []paginator.Attachment{{
			Name:        fmt.Sprintf("leaderboard-page-%d.csv", i+1),
			ContentType: "text/csv",
			Data:        buf.Bytes(),
		}})
	}
	return out, nil
}

func pointsLabel(n int64) string {
	if n == 1 {
		return "1 point"
	}
	return fmt.Sprintf("%d points", n)
}
