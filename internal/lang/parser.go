package lang

import "errors"

// ErrInvalid is returned for every malformed command line. The parser
// does not distinguish its various causes (empty pipe segment,
// duplicate redirection, missing redirection target, empty argv): the
// REPL only ever needs to know "parsing failed" in order to print
// "invalid command" and keep going.
var ErrInvalid = errors.New("invalid command")

// Stage is one command within a Pipeline: an argv plus at most one
// input and one output redirection. Redirection tokens may appear
// anywhere among a stage's words; their position never affects argv
// order.
type Stage struct {
	Argv       []string
	StdinPath  string
	HasStdin   bool
	StdoutPath string
	HasStdout  bool
}

// Pipeline is a non-empty, ordered sequence of Stages connected by
// pipes.
type Pipeline struct {
	Stages []Stage
}

// Parse converts a token sequence into a validated Pipeline. An empty
// token sequence (the empty-line case) returns (nil, nil); callers
// must check for that before treating it as a parse error.
func Parse(tokens []Token) (*Pipeline, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	runs, err := splitOnPipe(tokens)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{Stages: make([]Stage, len(runs))}
	for i, run := range runs {
		stage, err := parseStage(run)
		if err != nil {
			return nil, err
		}
		p.Stages[i] = stage
	}
	return p, nil
}

// splitOnPipe partitions tokens at Pipe boundaries. Every resulting
// run must be non-empty: a Pipe at the start, at the end, or next to
// another Pipe produces an empty run, which is a parse error.
func splitOnPipe(tokens []Token) ([][]Token, error) {
	var runs [][]Token
	var current []Token

	for _, tok := range tokens {
		if tok.Type == Pipe {
			if len(current) == 0 {
				return nil, ErrInvalid
			}
			runs = append(runs, current)
			current = nil
			continue
		}
		current = append(current, tok)
	}
	if len(current) == 0 {
		return nil, ErrInvalid
	}
	runs = append(runs, current)
	return runs, nil
}

// parseStage builds a single Stage from one pipe-delimited run of
// tokens.
func parseStage(tokens []Token) (Stage, error) {
	var stage Stage

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.Type {
		case Word:
			stage.Argv = append(stage.Argv, tok.Value)

		case RedirIn:
			filename, ok := nextWord(tokens, i)
			if !ok || stage.HasStdin {
				return Stage{}, ErrInvalid
			}
			stage.StdinPath = filename
			stage.HasStdin = true
			i++

		case RedirOut:
			filename, ok := nextWord(tokens, i)
			if !ok || stage.HasStdout {
				return Stage{}, ErrInvalid
			}
			stage.StdoutPath = filename
			stage.HasStdout = true
			i++

		default:
			return Stage{}, ErrInvalid
		}
	}

	if len(stage.Argv) == 0 {
		return Stage{}, ErrInvalid
	}
	return stage, nil
}

// nextWord returns the Word token immediately following index i, if
// there is one.
func nextWord(tokens []Token, i int) (string, bool) {
	if i+1 >= len(tokens) || tokens[i+1].Type != Word {
		return "", false
	}
	return tokens[i+1].Value, true
}
