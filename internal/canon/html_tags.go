package canon

// htmlTags is the set of bare identifiers the canonicalizer treats as HTML
// tag builtins when unshadowed: the standard HTML5 element vocabulary the
// DSL targets.
var htmlTags = map[string]bool{
	"a": true, "abbr": true, "address": true, "area": true, "article": true,
	"aside": true, "audio": true, "b": true, "base": true, "bdi": true,
	"bdo": true, "blockquote": true, "body": true, "br": true, "button": true,
	"canvas": true, "caption": true, "cite": true, "code": true, "col": true,
	"colgroup": true, "data": true, "datalist": true, "dd": true, "del": true,
	"details": true, "dfn": true, "dialog": true, "div": true, "dl": true,
	"dt": true, "em": true, "embed": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "head": true,
	"header": true, "hr": true, "html": true, "i": true, "iframe": true,
	"img": true, "input": true, "ins": true, "kbd": true, "label": true,
	"legend": true, "li": true, "link": true, "main": true, "map": true,
	"mark": true, "meta": true, "meter": true, "nav": true, "noscript": true,
	"object": true, "ol": true, "optgroup": true, "option": true,
	"output": true, "p": true, "param": true, "picture": true, "pre": true,
	"progress": true, "q": true, "s": true, "samp": true, "script": true,
	"section": true, "select": true, "small": true, "source": true,
	"span": true, "strong": true, "style": true, "sub": true, "summary": true,
	"sup": true, "table": true, "tbody": true, "td": true, "template": true,
	"textarea": true, "tfoot": true, "th": true, "thead": true, "time": true,
	"title": true, "tr": true, "track": true, "u": true, "ul": true,
	"var": true, "video": true, "wbr": true,
}

// htmlAttrAliases maps the DSL's camelCase attribute spellings to their
// canonical HTML attribute name.
var htmlAttrAliases = map[string]string{
	"className":       "class",
	"htmlFor":         "for",
	"readOnly":        "readonly",
	"maxLength":       "maxlength",
	"minLength":       "minlength",
	"tabIndex":        "tabindex",
	"autoFocus":       "autofocus",
	"autoComplete":    "autocomplete",
	"autoPlay":        "autoplay",
	"contentEditable": "contenteditable",
	"spellCheck":      "spellcheck",
	"acceptCharset":   "accept-charset",
	"crossOrigin":     "crossorigin",
	"noValidate":      "novalidate",
	"formAction":      "formaction",
	"formMethod":      "formmethod",
	"formTarget":      "formtarget",
	"formNoValidate":  "formnovalidate",
	"srcSet":          "srcset",
	"useMap":          "usemap",
	"colSpan":         "colspan",
	"rowSpan":         "rowspan",
	"cellPadding":     "cellpadding",
	"cellSpacing":     "cellspacing",
	"dateTime":        "datetime",
	"allowFullScreen": "allowfullscreen",
	"isMap":           "ismap",
	"encType":         "enctype",
}

// normalizeAttrName applies the DSL's attribute normalization.
func normalizeAttrName(name string) string {
	if canonical, ok := htmlAttrAliases[name]; ok {
		return canonical
	}
	return name
}
