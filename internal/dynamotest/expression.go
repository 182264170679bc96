package dynamotest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// evalCondition reports whether item satisfies expr. An empty expression is
// always satisfied; a nil item has no attributes.
func evalCondition(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	if parts := splitTop(expr, " OR "); len(parts) > 1 {
		for _, p := range parts {
			ok, err := evalCondition(p, item, names, values)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	if parts := splitTop(expr, " AND "); len(parts) > 1 {
		for _, p := range parts {
			ok, err := evalCondition(p, item, names, values)
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	}
	if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") && balanced(expr[1:len(expr)-1]) {
		return evalCondition(expr[1:len(expr)-1], item, names, values)
	}
	if arg, ok := call(expr, "attribute_exists"); ok {
		_, present := item[resolveName(arg, names)]
		return present, nil
	}
	if arg, ok := call(expr, "attribute_not_exists"); ok {
		_, present := item[resolveName(arg, names)]
		return !present, nil
	}

	fields := strings.Fields(expr)
	if len(fields) != 3 {
		return false, fmt.Errorf("dynamotest: unsupported condition %q", expr)
	}
	lhs := item[resolveName(fields[0], names)]
	rhs, ok := values[fields[2]]
	if !ok {
		return false, fmt.Errorf("dynamotest: missing value %s", fields[2])
	}
	cmp, comparable := compare(lhs, rhs)
	if !comparable {
		return false, nil
	}
	switch fields[1] {
	case "=":
		return cmp == 0, nil
	case "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("dynamotest: unsupported operator %q", fields[1])
}

// applyUpdate mutates item according to a SET/REMOVE/ADD update expression.
func applyUpdate(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	sections := map[string][]string{}
	current := ""
	for _, tok := range strings.Fields(expr) {
		switch tok {
		case "SET", "REMOVE", "ADD":
			current = tok
			continue
		}
		if current == "" {
			return fmt.Errorf("dynamotest: unsupported update %q", expr)
		}
		sections[current] = append(sections[current], tok)
	}

	for _, clause := range splitClauses(sections["SET"]) {
		lhs, rhs, ok := strings.Cut(clause, "=")
		if !ok {
			return fmt.Errorf("dynamotest: bad SET clause %q", clause)
		}
		v, ok := values[strings.TrimSpace(rhs)]
		if !ok {
			return fmt.Errorf("dynamotest: missing value %s", rhs)
		}
		item[resolveName(strings.TrimSpace(lhs), names)] = v
	}
	for _, clause := range splitClauses(sections["REMOVE"]) {
		delete(item, resolveName(clause, names))
	}
	for _, clause := range splitClauses(sections["ADD"]) {
		f := strings.Fields(clause)
		if len(f) != 2 {
			return fmt.Errorf("dynamotest: bad ADD clause %q", clause)
		}
		delta, ok := values[f[1]].(*types.AttributeValueMemberN)
		if !ok {
			return fmt.Errorf("dynamotest: ADD needs a number value, got %s", f[1])
		}
		name := resolveName(f[0], names)
		base := 0.0
		if cur, ok := item[name].(*types.AttributeValueMemberN); ok {
			base, _ = strconv.ParseFloat(cur.Value, 64)
		}
		d, _ := strconv.ParseFloat(delta.Value, 64)
		item[name] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(base+d, 'f', -1, 64)}
	}
	return nil
}

// compare orders two scalar attribute values of the same type.
func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := strconv.ParseFloat(av.Value, 64)
		y, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok || av.Value != bv.Value {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func call(expr, fn string) (string, bool) {
	if !strings.HasPrefix(expr, fn+"(") || !strings.HasSuffix(expr, ")") {
		return "", false
	}
	return strings.TrimSpace(expr[len(fn)+1 : len(expr)-1]), true
}

// splitTop splits on sep only where it appears outside parentheses.
func splitTop(expr, sep string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(expr[i:], sep) {
			parts = append(parts, strings.TrimSpace(expr[start:i]))
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	return append(parts, strings.TrimSpace(expr[start:]))
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func splitClauses(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	var out []string
	for _, c := range strings.Split(strings.Join(tokens, " "), ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
