package text

// builtinLexicon covers frequent conversational words in CMU ARPABET. A full
// dictionary can be merged at runtime with G2P.LoadLexiconFile.
var builtinLexicon = map[string]string{
	"a":         "AH0",
	"about":     "AH0 B AW1 T",
	"again":     "AH0 G EH1 N",
	"all":       "AO1 L",
	"am":        "AE1 M",
	"an":        "AE1 N",
	"and":       "AH0 N D",
	"are":       "AA1 R",
	"as":        "AE1 Z",
	"at":        "AE1 T",
	"be":        "B IY1",
	"because":   "B IH0 K AO1 Z",
	"but":       "B AH1 T",
	"by":        "B AY1",
	"can":       "K AE1 N",
	"could":     "K UH1 D",
	"day":       "D EY1",
	"do":        "D UW1",
	"doing":     "D UW1 IH0 NG",
	"don't":     "D OW1 N T",
	"for":       "F AO1 R",
	"friend":    "F R EH1 N D",
	"from":      "F R AH1 M",
	"get":       "G EH1 T",
	"go":        "G OW1",
	"good":      "G UH1 D",
	"great":     "G R EY1 T",
	"had":       "HH AE1 D",
	"happy":     "HH AE1 P IY0",
	"has":       "HH AE1 Z",
	"have":      "HH AE1 V",
	"he":        "HH IY1",
	"hello":     "HH AH0 L OW1",
	"help":      "HH EH1 L P",
	"her":       "HH ER1",
	"here":      "HH IY1 R",
	"hey":       "HH EY1",
	"hi":        "HH AY1",
	"how":       "HH AW1",
	"i":         "AY1",
	"i'm":       "AY1 M",
	"if":        "IH1 F",
	"in":        "IH0 N",
	"is":        "IH1 Z",
	"it":        "IH1 T",
	"it's":      "IH1 T S",
	"just":      "JH AH1 S T",
	"know":      "N OW1",
	"like":      "L AY1 K",
	"little":    "L IH1 T AH0 L",
	"love":      "L AH1 V",
	"make":      "M EY1 K",
	"me":        "M IY1",
	"meet":      "M IY1 T",
	"more":      "M AO1 R",
	"morning":   "M AO1 R N IH0 NG",
	"my":        "M AY1",
	"name":      "N EY1 M",
	"need":      "N IY1 D",
	"new":       "N UW1",
	"nice":      "N AY1 S",
	"night":     "N AY1 T",
	"no":        "N OW1",
	"not":       "N AA1 T",
	"now":       "N AW1",
	"of":        "AH1 V",
	"okay":      "OW2 K EY1",
	"on":        "AA1 N",
	"one":       "W AH1 N",
	"or":        "AO1 R",
	"our":       "AW1 ER0",
	"out":       "AW1 T",
	"please":    "P L IY1 Z",
	"really":    "R IH1 L IY0",
	"right":     "R AY1 T",
	"say":       "S EY1",
	"see":       "S IY1",
	"she":       "SH IY1",
	"so":        "S OW1",
	"some":      "S AH1 M",
	"sorry":     "S AA1 R IY0",
	"sure":      "SH UH1 R",
	"talk":      "T AO1 K",
	"test":      "T EH1 S T",
	"thank":     "TH AE1 NG K",
	"thanks":    "TH AE1 NG K S",
	"that":      "DH AE1 T",
	"the":       "DH AH0",
	"their":     "DH EH1 R",
	"them":      "DH EH1 M",
	"then":      "DH EH1 N",
	"there":     "DH EH1 R",
	"they":      "DH EY1",
	"think":     "TH IH1 NG K",
	"this":      "DH IH1 S",
	"time":      "T AY1 M",
	"to":        "T UW1",
	"today":     "T AH0 D EY1",
	"too":       "T UW1",
	"up":        "AH1 P",
	"us":        "AH1 S",
	"very":      "V EH1 R IY0",
	"voice":     "V OY1 S",
	"want":      "W AA1 N T",
	"was":       "W AA1 Z",
	"we":        "W IY1",
	"welcome":   "W EH1 L K AH0 M",
	"well":      "W EH1 L",
	"what":      "W AH1 T",
	"when":      "W EH1 N",
	"where":     "W EH1 R",
	"which":     "W IH1 CH",
	"who":       "HH UW1",
	"why":       "W AY1",
	"will":      "W IH1 L",
	"with":      "W IH1 DH",
	"world":     "W ER1 L D",
	"would":     "W UH1 D",
	"yes":       "Y EH1 S",
	"you":       "Y UW1",
	"you're":    "Y UH1 R",
	"your":      "Y AO1 R",
	"yourself":  "Y ER0 S EH1 L F",
	"companion": "K AH0 M P AE1 N Y AH0 N",
}
