package pyast

// Kind classifies syntax nodes into the closed set the semantic model
// understands. Node types outside this set map to KindOther and every switch
// over Kind handles KindOther explicitly.
type Kind uint8

const (
	KindOther Kind = iota

	// Statements.
	KindModule
	KindBlock
	KindClass
	KindFunction
	KindDecorated
	KindExpressionStatement
	KindAssignment
	KindAugmentedAssignment
	KindImport
	KindFromImport
	KindFutureImport
	KindReturn
	KindIf
	KindElif
	KindElse
	KindFor
	KindWhile
	KindTry
	KindExcept
	KindFinally
	KindWith
	KindGlobal

	// Expressions.
	KindName
	KindAttribute
	KindCall
	KindString
	KindList
	KindTuple
	KindDict
	KindSet
	KindNumber
	KindConstant
	KindComprehension
	KindOperator
	KindComparison
	KindSubscript
	KindLambda
	KindConditional
	KindParenthesized
	KindAwait

	// Targets and parameters.
	KindPatternList
	KindSplat
	KindParameters
	KindTypedParameter
	KindDefaultParameter
	KindDottedName
	KindAliasedImport
	KindRelativeImport
	KindWildcardImport
	KindAsPattern
	KindComment
)

var kindNames = [...]string{
	KindOther:               "other",
	KindModule:              "module",
	KindBlock:               "block",
	KindClass:               "class",
	KindFunction:            "function",
	KindDecorated:           "decorated",
	KindExpressionStatement: "expression_statement",
	KindAssignment:          "assignment",
	KindAugmentedAssignment: "augmented_assignment",
	KindImport:              "import",
	KindFromImport:          "from_import",
	KindFutureImport:        "future_import",
	KindReturn:              "return",
	KindIf:                  "if",
	KindElif:                "elif",
	KindElse:                "else",
	KindFor:                 "for",
	KindWhile:               "while",
	KindTry:                 "try",
	KindExcept:              "except",
	KindFinally:             "finally",
	KindWith:                "with",
	KindGlobal:              "global",
	KindName:                "name",
	KindAttribute:           "attribute",
	KindCall:                "call",
	KindString:              "string",
	KindList:                "list",
	KindTuple:               "tuple",
	KindDict:                "dict",
	KindSet:                 "set",
	KindNumber:              "number",
	KindConstant:            "constant",
	KindComprehension:       "comprehension",
	KindOperator:            "operator",
	KindComparison:          "comparison",
	KindSubscript:           "subscript",
	KindLambda:              "lambda",
	KindConditional:         "conditional",
	KindParenthesized:       "parenthesized",
	KindAwait:               "await",
	KindPatternList:         "pattern_list",
	KindSplat:               "splat",
	KindParameters:          "parameters",
	KindTypedParameter:      "typed_parameter",
	KindDefaultParameter:    "default_parameter",
	KindDottedName:          "dotted_name",
	KindAliasedImport:       "aliased_import",
	KindRelativeImport:      "relative_import",
	KindWildcardImport:      "wildcard_import",
	KindAsPattern:           "as_pattern",
	KindComment:             "comment",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "other"
}

var grammarKinds = map[string]Kind{
	"module":                   KindModule,
	"block":                    KindBlock,
	"class_definition":         KindClass,
	"function_definition":      KindFunction,
	"decorated_definition":     KindDecorated,
	"expression_statement":     KindExpressionStatement,
	"assignment":               KindAssignment,
	"augmented_assignment":     KindAugmentedAssignment,
	"import_statement":         KindImport,
	"import_from_statement":    KindFromImport,
	"future_import_statement":  KindFutureImport,
	"return_statement":         KindReturn,
	"if_statement":             KindIf,
	"elif_clause":              KindElif,
	"else_clause":              KindElse,
	"for_statement":            KindFor,
	"while_statement":          KindWhile,
	"try_statement":            KindTry,
	"except_clause":            KindExcept,
	"except_group_clause":      KindExcept,
	"finally_clause":           KindFinally,
	"with_statement":           KindWith,
	"global_statement":         KindGlobal,
	"nonlocal_statement":       KindGlobal,
	"identifier":               KindName,
	"attribute":                KindAttribute,
	"call":                     KindCall,
	"string":                   KindString,
	"concatenated_string":      KindString,
	"list":                     KindList,
	"tuple":                    KindTuple,
	"dictionary":               KindDict,
	"set":                      KindSet,
	"integer":                  KindNumber,
	"float":                    KindNumber,
	"true":                     KindConstant,
	"false":                    KindConstant,
	"none":                     KindConstant,
	"ellipsis":                 KindConstant,
	"list_comprehension":       KindComprehension,
	"dictionary_comprehension": KindComprehension,
	"set_comprehension":        KindComprehension,
	"generator_expression":     KindComprehension,
	"binary_operator":          KindOperator,
	"boolean_operator":         KindOperator,
	"not_operator":             KindOperator,
	"unary_operator":           KindOperator,
	"comparison_operator":      KindComparison,
	"subscript":                KindSubscript,
	"slice":                    KindSubscript,
	"lambda":                   KindLambda,
	"conditional_expression":   KindConditional,
	"parenthesized_expression": KindParenthesized,
	"await":                    KindAwait,
	"pattern_list":             KindPatternList,
	"tuple_pattern":            KindPatternList,
	"list_pattern":             KindPatternList,
	"expression_list":          KindPatternList,
	"list_splat_pattern":       KindSplat,
	"dictionary_splat_pattern": KindSplat,
	"list_splat":               KindSplat,
	"dictionary_splat":         KindSplat,
	"parameters":               KindParameters,
	"lambda_parameters":        KindParameters,
	"typed_parameter":          KindTypedParameter,
	"default_parameter":        KindDefaultParameter,
	"typed_default_parameter":  KindDefaultParameter,
	"dotted_name":              KindDottedName,
	"aliased_import":           KindAliasedImport,
	"relative_import":          KindRelativeImport,
	"wildcard_import":          KindWildcardImport,
	"as_pattern":               KindAsPattern,
	"comment":                  KindComment,
}

// KindOf classifies n. A nil node is KindOther.
func KindOf(n *Node) Kind {
	if n == nil {
		return KindOther
	}
	if k, ok := grammarKinds[n.Type()]; ok {
		return k
	}
	return KindOther
}
