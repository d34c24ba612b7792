package classifier

// stopwords are skipped when extracting key terms. Words shorter than
// minTermRunes are dropped before lookup and are not listed.
var stopwords = map[string]bool{
	"algo": true, "algunas": true, "algunos": true, "ante": true, "antes": true, "como": true,
	"contra": true, "cual": true, "cuando": true, "desde": true, "donde": true, "durante": true,
	"ella": true, "ellas": true, "ellos": true, "entre": true, "erais": true, "eran": true,
	"eras": true, "eres": true, "esas": true, "esos": true, "esta": true, "estaba": true,
	"estabais": true, "estaban": true, "estabas": true, "estad": true, "estada": true,
	"estadas": true, "estado": true, "estados": true, "estamos": true, "estando": true, "estar": true,
	"estaremos": true, "estará": true, "estarán": true, "estarás": true, "estaré": true,
	"estaréis": true, "estaría": true, "estaríais": true, "estaríamos": true, "estarían": true,
	"estarías": true, "estas": true, "este": true, "estemos": true, "esto": true, "estos": true,
	"estoy": true, "estuve": true, "estuviera": true, "estuvierais": true, "estuvieran": true,
	"estuvieras": true, "estuvieron": true, "estuviese": true, "estuvieseis": true,
	"estuviesen": true, "estuvieses": true, "estuvimos": true, "estuviste": true, "estuvisteis": true,
	"estuviéramos": true, "estuviésemos": true, "estuvo": true, "está": true, "estábamos": true,
	"estáis": true, "están": true, "estás": true, "esté": true, "estéis": true, "estén": true,
	"estés": true, "fuera": true, "fuerais": true, "fueran": true, "fueras": true, "fueron": true,
	"fuese": true, "fueseis": true, "fuesen": true, "fueses": true, "fuimos": true, "fuiste": true,
	"fuisteis": true, "fuéramos": true, "fuésemos": true, "habida": true, "habidas": true,
	"habido": true, "habidos": true, "habiendo": true, "habremos": true, "habrá": true,
	"habrán": true, "habrás": true, "habré": true, "habréis": true, "habría": true, "habríais": true,
	"habríamos": true, "habrían": true, "habrías": true, "habéis": true, "había": true,
	"habíais": true, "habíamos": true, "habían": true, "habías": true, "hasta": true, "haya": true,
	"hayamos": true, "hayan": true, "hayas": true, "hayáis": true, "hemos": true, "hube": true,
	"hubiera": true, "hubierais": true, "hubieran": true, "hubieras": true, "hubieron": true,
	"hubiese": true, "hubieseis": true, "hubiesen": true, "hubieses": true, "hubimos": true,
	"hubiste": true, "hubisteis": true, "hubiéramos": true, "hubiésemos": true, "hubo": true,
	"mucho": true, "muchos": true, "mías": true, "míos": true, "nada": true, "nosotras": true,
	"nosotros": true, "nuestra": true, "nuestras": true, "nuestro": true, "nuestros": true,
	"otra": true, "otras": true, "otro": true, "otros": true, "para": true, "pero": true,
	"poco": true, "porque": true, "quien": true, "quienes": true, "seamos": true, "sean": true,
	"seas": true, "seremos": true, "será": true, "serán": true, "serás": true, "seré": true,
	"seréis": true, "sería": true, "seríais": true, "seríamos": true, "serían": true, "serías": true,
	"seáis": true, "siendo": true, "sobre": true, "sois": true, "somos": true, "suya": true,
	"suyas": true, "suyo": true, "suyos": true, "también": true, "tanto": true, "tendremos": true,
	"tendrá": true, "tendrán": true, "tendrás": true, "tendré": true, "tendréis": true,
	"tendría": true, "tendríais": true, "tendríamos": true, "tendrían": true, "tendrías": true,
	"tened": true, "tenemos": true, "tenga": true, "tengamos": true, "tengan": true, "tengas": true,
	"tengo": true, "tengáis": true, "tenida": true, "tenidas": true, "tenido": true, "tenidos": true,
	"teniendo": true, "tenéis": true, "tenía": true, "teníais": true, "teníamos": true,
	"tenían": true, "tenías": true, "tiene": true, "tienen": true, "tienes": true, "todo": true,
	"todos": true, "tuve": true, "tuviera": true, "tuvierais": true, "tuvieran": true,
	"tuvieras": true, "tuvieron": true, "tuviese": true, "tuvieseis": true, "tuviesen": true,
	"tuvieses": true, "tuvimos": true, "tuviste": true, "tuvisteis": true, "tuviéramos": true,
	"tuviésemos": true, "tuvo": true, "tuya": true, "tuyas": true, "tuyo": true, "tuyos": true,
	"unos": true, "vosotras": true, "vosotros": true, "vuestra": true, "vuestras": true,
	"vuestro": true, "vuestros": true, "éramos": true, "about": true, "after": true, "also": true,
	"been": true, "before": true, "being": true, "could": true, "does": true, "from": true,
	"have": true, "into": true, "more": true, "most": true, "only": true, "other": true, "over": true,
	"should": true, "some": true, "such": true, "than": true, "that": true, "their": true,
	"them": true, "then": true, "there": true, "these": true, "they": true, "this": true,
	"those": true, "very": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "with": true, "would": true, "your": true,
}
