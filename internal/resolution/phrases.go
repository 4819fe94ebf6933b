package resolution

// PreambulatoryPhrases are the accepted opening phrases for preambulatory
// clauses.
var PreambulatoryPhrases = []string{
	"Acknowledging", "Affirming", "Alarmed by", "Approving", "Aware of", "Bearing in mind",
	"Believing", "Confident", "Congratulating", "Contemplating", "Convinced", "Declaring",
	"Deeply concerned", "Deeply conscious", "Deeply disturbed", "Deeply regretting", "Desiring",
	"Emphasizing", "Expecting", "Expressing its appreciation", "Expressing its satisfaction",
	"Fulfilling", "Fully aware", "Further deploring", "Further recalling", "Guided by",
	"Having adopted", "Having considered", "Having devoted attention", "Having examined",
	"Having received", "Keeping in mind", "Noting with appreciation", "Noting with deep concern",
	"Noting with regret", "Noting with satisfaction", "Noting further", "Observing",
	"Pointing out", "Reaffirming", "Realizing", "Recalling", "Recognizing", "Referring",
	"Seeking", "Taking into consideration", "Taking note", "Viewing with appreciation", "Welcoming",
}

// OperativePhrases are the accepted opening phrases for operative clauses.
var OperativePhrases = []string{
	"Accepts", "Affirms", "Approves", "Asks", "Authorizes", "Calls for", "Calls upon",
	"Condemns", "Confirms", "Decides", "Declares accordingly", "Demands", "Draws the attention",
	"Deplores", "Designates", "Encourages", "Endorses", "Emphasizes", "Expressing its appreciation",
	"Expressing its hope", "Expressing its satisfaction", "Further invites", "Further proclaims",
	"Further recommends", "Further requests", "Has resolved", "Hopes", "Invites", "Notes",
	"Proclaims", "Proposes", "Reaffirms", "Recommends", "Regrets", "Requests", "Seeks",
	"Solemnly affirms", "Strongly condemns", "Supports", "Suggests", "Takes note of",
	"Transmits", "Trusts", "Urges",
}
