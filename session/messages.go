package session

import (
	"fmt"
	"strings"

	"github.com/korjavin/medcasebot/models"
)

const callbackPrefix = "answer:"

// CallbackData encodes an answer button as answer:<caseID>:<symbol>
func CallbackData(caseID string, answer models.Answer) string {
	return callbackPrefix + caseID + ":" + string(answer)
}

// ParseCallbackData decodes data produced by CallbackData.
// The symbol is split off the end because case ids may contain colons.
func ParseCallbackData(data string) (string, models.Answer, bool) {
	if !strings.HasPrefix(data, callbackPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(data, callbackPrefix)
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 {
		return "", "", false
	}
	answer, ok := models.ParseAnswer(rest[idx+1:])
	if !ok {
		return "", "", false
	}
	return rest[:idx], answer, true
}

func noticeText(n Notice) string {
	switch n.Kind {
	case NoticeQuotaExceeded:
		return fmt.Sprintf("You have reached your daily limit of %d cases. Come back tomorrow!", n.Limit)
	case NoticeNoCases:
		return "No cases are available right now. Please try again later."
	case NoticeRestarting:
		return "🎉 You have solved every case in the catalog! Starting over from the beginning."
	case NoticeBatchStarted:
		return fmt.Sprintf("Here come %d cases. Reply with A, B, C or D or use the buttons.", n.Count)
	case NoticeSessionExpired:
		return "This session has expired. Use /next to get new cases."
	case NoticeSummary:
		return fmt.Sprintf(`🏁 Session complete!

Correct Answers: %d ✅
Incorrect Answers: %d ❌
Score: %d%%`, n.Correct, n.Incorrect, n.Percent)
	}
	return ""
}

func verdictText(correct, chosen models.Answer) string {
	if correct == chosen {
		return "✅ Correct! Well done!"
	}
	return fmt.Sprintf("❌ Sorry, that's not correct. The right answer is %s.", correct)
}

const choicePrompt = "Please select your answer:"
