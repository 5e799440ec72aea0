// Package party implements activity scheduling: the creation wizard, the
// membership controller, the roster message synchronizer and the reminder
// sweep.
package party

// Kind is one entry of the fixed activity catalog. Capacity is fixed per
// kind and never configurable per activity.
type Kind struct {
	ID       string
	Label    string
	Capacity int
}

// Kinds is the activity catalog presented by the wizard, in display
// order.
var Kinds = []Kind{
	{ID: "dungeon", Label: "Dungeon Run", Capacity: 4},
	{ID: "raid", Label: "Guild Raid", Capacity: 6},
	{ID: "hunt", Label: "World Boss Hunt", Capacity: 4},
	{ID: "expedition", Label: "Expedition", Capacity: 6},
}

// KindByID looks a catalog entry up. It returns nil for unknown ids, which
// callers treat as invalid input.
func KindByID(id string) *Kind {
	for i := range Kinds {
		if Kinds[i].ID == id {
			return &Kinds[i]
		}
	}
	return nil
}

// Zones is the fixed timezone catalog offered during the wizard's
// timezone step. Indices are stable: wizard tokens reference zones by
// position to stay within Telegram's callback-data size limit.
var Zones = []string{
	"Europe/London",
	"Europe/Berlin",
	"Europe/Moscow",
	"America/New_York",
	"America/Chicago",
	"America/Los_Angeles",
	"America/Sao_Paulo",
	"Asia/Jakarta",
	"Asia/Shanghai",
	"Asia/Tokyo",
	"Australia/Sydney",
}

// ScheduleLayout is the local date-time format organizers type into the
// schedule form.
const ScheduleLayout = "02.01.2006 15:04"
