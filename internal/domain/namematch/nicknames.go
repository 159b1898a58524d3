package namematch

// DefaultNicknames maps canonical first names to their common diminutives.
// Keys and values are already normalized.
var DefaultNicknames = map[string][]string{
	"abigail":     {"abby", "abbie", "gail"},
	"alexander":   {"alex", "xander", "sasha"},
	"alexandra":   {"alex", "lexi", "sandra", "sasha"},
	"andrew":      {"andy", "drew"},
	"anthony":     {"tony", "ant"},
	"benjamin":    {"ben", "benny", "benji"},
	"catherine":   {"cathy", "cat", "kate", "katie"},
	"christopher": {"chris", "topher", "kit"},
	"daniel":      {"dan", "danny"},
	"deborah":     {"deb", "debbie", "debby"},
	"edward":      {"ed", "eddie", "ted", "ned"},
	"elizabeth":   {"liz", "beth", "betsy", "lizzy", "eliza", "libby"},
	"gregory":     {"greg"},
	"isabella":    {"bella", "izzy", "isa"},
	"james":       {"jim", "jimmy", "jamie"},
	"jeffrey":     {"jeff"},
	"jennifer":    {"jen", "jenny", "jenn"},
	"jessica":     {"jess", "jessie"},
	"john":        {"jack", "johnny"},
	"jonathan":    {"jon", "jonny"},
	"joseph":      {"joe", "joey"},
	"joshua":      {"josh"},
	"katherine":   {"kate", "katie", "kathy", "kat", "kit"},
	"kimberly":    {"kim"},
	"madeline":    {"maddie", "maddy"},
	"margaret":    {"maggie", "meg", "peggy", "margie"},
	"matthew":     {"matt", "matty"},
	"michael":     {"mike", "mikey", "mick"},
	"nathaniel":   {"nate", "nathan", "nat"},
	"nicholas":    {"nick", "nicky", "nico"},
	"olivia":      {"liv", "livvy"},
	"patricia":    {"pat", "patty", "trish", "tricia"},
	"rebecca":     {"becca", "becky"},
	"richard":     {"rick", "ricky", "rich", "richie", "dick"},
	"robert":      {"bob", "rob", "bobby", "robbie", "bert"},
	"samantha":    {"sam", "sammy"},
	"samuel":      {"sam", "sammy"},
	"stephen":     {"steve", "stevie"},
	"steven":      {"steve", "stevie"},
	"susan":       {"sue", "susie", "suzy"},
	"theodore":    {"theo", "ted", "teddy"},
	"thomas":      {"tom", "tommy"},
	"timothy":     {"tim", "timmy"},
	"victoria":    {"vicky", "tori", "vic"},
	"william":     {"bill", "will", "billy", "willie", "liam"},
	"zachary":     {"zach", "zack"},
}

// nicknameIndex answers "is one of these a diminutive of the other" in both
// directions.
type nicknameIndex map[string]map[string]struct{}

func newNicknameIndex(table map[string][]string) nicknameIndex {
	idx := make(nicknameIndex)
	link := func(a, b string) {
		if idx[a] == nil {
			idx[a] = make(map[string]struct{})
		}
		idx[a][b] = struct{}{}
	}
	for canonical, variants := range table {
		c := Normalize(canonical)
		for _, v := range variants {
			n := Normalize(v)
			if n == "" || n == c {
				continue
			}
			link(c, n)
			link(n, c)
		}
	}
	return idx
}

func (idx nicknameIndex) related(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	_, ok := idx[a][b]
	return ok
}
