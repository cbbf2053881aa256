// Package e2e provides end-to-end tests that train on a generated PDF library and
// check that questions are answered from the right file and page.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/pdftest"
)

// Manual is one generated PDF. Only Page 2 carries the Fact; pages 1 and 3 are
// boilerplate shared by every manual so they cannot discriminate.
type Manual struct {
	Filename string
	Title    string
	Fact     string
}

// Case is a question whose supporting passage is page 2 of Filename.
type Case struct {
	Question string
	Filename string
}

// Library is the generated corpus.
type Library struct {
	Manuals []Manual
	Cases   []Case
}

var manuals = []struct {
	title    string
	fact     string
	question string
}{
	{"Coffee Machine", "Descale the boiler with citric acid every forty brewing cycles.", "how often should the boiler be descaled with citric acid"},
	{"Forklift Safety", "Operators must sound the horn at blind intersections and loading docks.", "when must operators sound the horn"},
	{"Travel Policy", "Economy airfare is mandatory for flights shorter than six hours.", "is economy airfare mandatory for short flights"},
	{"Parental Leave", "Primary caregivers receive sixteen weeks of paid parental leave.", "how many weeks of paid parental leave do caregivers receive"},
	{"Server Room", "Halon suppression triggers when two smoke detectors alarm together.", "what triggers the halon suppression"},
	{"Expense Claims", "Receipts above seventy five euros need a scanned original invoice.", "which receipts need a scanned original invoice"},
	{"Greenhouse", "Tomato seedlings need transplanting once the third true leaf appears.", "when should tomato seedlings be transplanted"},
	{"Bicycle Repair", "Adjust derailleur cable tension with the barrel adjuster near the shifter.", "how do I adjust derailleur cable tension"},
	{"Warehouse Picking", "Pickers scan the shelf barcode before removing any pallet.", "what do pickers scan before removing a pallet"},
	{"Solar Inverter", "The inverter display flashes amber during grid undervoltage faults.", "why does the inverter display flash amber"},
	{"Aquarium Care", "Replace twenty percent of the aquarium water every fortnight.", "how much aquarium water should be replaced"},
	{"Password Rules", "Passphrases require fourteen characters and rotate annually.", "how many characters do passphrases require"},
	{"Kitchen Hygiene", "Chopping boards are colour coded, with red reserved for raw meat.", "which chopping board colour is reserved for raw meat"},
	{"Drone Operations", "Pilots keep the drone within visual line of sight below one hundred twenty metres.", "what altitude limit applies to drone pilots"},
	{"Library Loans", "Members may renew borrowed novels twice unless another reader reserved them.", "how many times can members renew borrowed novels"},
	{"Chemistry Lab", "Concentrated acids are always added slowly to water, never the reverse.", "how should concentrated acids be diluted with water"},
	{"Printer Setup", "Paper jams in tray three are cleared through the rear hinged panel.", "how are paper jams in tray three cleared"},
	{"Vineyard Harvest", "Grapes are harvested when sugar readings reach twenty four brix.", "at what brix reading are grapes harvested"},
	{"Beekeeping", "Smoke calms the colony before the hive lid is lifted.", "what calms the bee colony before opening the hive"},
	{"Ski Patrol", "Avalanche transceivers are tested at the lift base every morning.", "where are avalanche transceivers tested"},
	{"Piano Tuning", "Concert pianos are tuned to a reference pitch of four hundred forty hertz.", "what reference pitch are concert pianos tuned to"},
	{"Lighthouse Keeping", "The lamp lens is polished with chamois leather after each night watch.", "how is the lighthouse lens polished"},
	{"Cheese Aging", "Cheddar wheels are turned weekly inside the humid maturing cave.", "how often are cheddar wheels turned"},
	{"Sailing Club", "Dinghies must carry a bailer and a paddle before leaving the slipway.", "what must dinghies carry before leaving the slipway"},
}

// BuildLibrary returns the corpus with one question per manual.
func BuildLibrary() *Library {
	lib := &Library{}
	for _, m := range manuals {
		name := strings.ReplaceAll(strings.ToLower(m.title), " ", "-") + ".pdf"
		lib.Manuals = append(lib.Manuals, Manual{Filename: name, Title: m.title, Fact: m.fact})
		lib.Cases = append(lib.Cases, Case{Question: m.question, Filename: name})
	}
	return lib
}

// PDF renders the manual as a three page document.
func (m Manual) PDF() []byte {
	return pdftest.Build(
		fmt.Sprintf("%s manual\nThis handbook is part of the company reference library.", m.Title),
		m.Fact,
		"Revision history\nContact the documentation office for corrections.",
	)
}
