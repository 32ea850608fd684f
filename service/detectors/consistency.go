/*
 * @module service/detectors/consistency
 * @description 逻辑一致性检测：结构化条件规则与跨字段交叉校验
 * @architecture 业务服务层 - 统计检测项
 * @documentReference ai_docs/survey_quality_req.md
 * @rules 条件规则为数据化的 if/then 结构，检测集合编译期封闭，不执行动态代码
 * @refs service/detectors/detectors.go
 */

package detectors

import (
	"context"
	"fmt"
	"strings"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/models"
)

func init() {
	register(&builtinCheck{
		id:          "logical_consistency",
		category:    models.CheckCategoryDomainSpecific,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityHigh,
		description: "违反参数声明的 if/then 条件规则",
		run:         runLogicalConsistency,
	})
	register(&builtinCheck{
		id:          "cross_validation",
		category:    models.CheckCategoryDomainSpecific,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityMedium,
		description: "跨字段数值关系校验（等于/不小于/不大于）",
		run:         runCrossValidation,
	})
}

// condition 单个字段条件
type condition struct {
	Field    string
	Operator string // eq / ne / gt / gte / lt / lte / in / not_empty / empty
	Value    interface{}
	Values   []string
}

// conditionRule if 条件成立时 then 条件必须成立
type conditionRule struct {
	Name string
	If   condition
	Then condition
}

func parseCondition(raw interface{}) (condition, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return condition{}, fmt.Errorf("条件必须是对象")
	}
	c := condition{
		Field:    dataset.AsString(m["field"]),
		Operator: dataset.AsString(m["operator"]),
		Value:    m["value"],
	}
	if vs, ok := m["values"].([]interface{}); ok {
		for _, v := range vs {
			c.Values = append(c.Values, strings.ToLower(dataset.AsString(v)))
		}
	}
	if c.Field == "" || c.Operator == "" {
		return condition{}, fmt.Errorf("条件缺少 field 或 operator")
	}
	switch c.Operator {
	case "eq", "ne", "gt", "gte", "lt", "lte", "in", "not_empty", "empty":
	default:
		return condition{}, fmt.Errorf("不支持的操作符 %q", c.Operator)
	}
	return c, nil
}

func (c condition) evaluate(rec *dataset.Record) bool {
	v := rec.Value(c.Field)
	switch c.Operator {
	case "empty":
		return dataset.IsMissing(v)
	case "not_empty":
		return !dataset.IsMissing(v)
	case "in":
		s := strings.ToLower(strings.TrimSpace(dataset.AsString(v)))
		for _, candidate := range c.Values {
			if s == candidate {
				return true
			}
		}
		return false
	}

	// 数值比较优先，双方都可解析为数值时按数值比较
	if fv, ok := dataset.AsFloat(v); ok {
		if target, ok := dataset.AsFloat(c.Value); ok {
			switch c.Operator {
			case "eq":
				return fv == target
			case "ne":
				return fv != target
			case "gt":
				return fv > target
			case "gte":
				return fv >= target
			case "lt":
				return fv < target
			case "lte":
				return fv <= target
			}
		}
	}

	s := strings.ToLower(strings.TrimSpace(dataset.AsString(v)))
	target := strings.ToLower(strings.TrimSpace(dataset.AsString(c.Value)))
	switch c.Operator {
	case "eq":
		return s == target
	case "ne":
		return s != target
	}
	return false
}

func parseRules(rc *engine.RunContext, params engine.Params) ([]conditionRule, error) {
	raw, ok := params["rules"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: rules 参数缺失或为空", engine.ErrMisconfigured)
	}

	rules := make([]conditionRule, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: 第 %d 条规则格式错误", engine.ErrMisconfigured, i)
		}
		ifCond, err := parseCondition(m["if"])
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 条规则 if 条件: %v", engine.ErrMisconfigured, i, err)
		}
		thenCond, err := parseCondition(m["then"])
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 条规则 then 条件: %v", engine.ErrMisconfigured, i, err)
		}
		for _, f := range []string{ifCond.Field, thenCond.Field} {
			if !rc.Dataset.Schema.Has(f) {
				return nil, fmt.Errorf("%w: 规则字段 %s 不在数据集模式中", engine.ErrMisconfigured, f)
			}
		}
		name := dataset.AsString(m["name"])
		if name == "" {
			name = fmt.Sprintf("rule_%d", i)
		}
		rules = append(rules, conditionRule{Name: name, If: ifCond, Then: thenCond})
	}
	return rules, nil
}

// runLogicalConsistency if 条件成立而 then 条件不成立时产出问题
func runLogicalConsistency(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	rules, err := parseRules(rc, params)
	if err != nil {
		return nil, err
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, rule := range rules {
			if rule.If.evaluate(rec) && !rule.Then.evaluate(rec) {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       rule.Then.Field,
					Confidence:  1.0,
					Explanation: fmt.Sprintf("违反一致性规则 %s: %s %s 成立但 %s %s 不成立",
						rule.Name, rule.If.Field, rule.If.Operator, rule.Then.Field, rule.Then.Operator),
					Details: models.JSONB{"rule": rule.Name, "if_field": rule.If.Field, "then_field": rule.Then.Field},
				})
			}
		}
	}
	return findings, nil
}

// runCrossValidation 数值字段对的关系校验
// pairs 参数形如 [{"left":"start_age","relation":"lte","right":"end_age"}]
func runCrossValidation(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	raw, ok := params["pairs"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: pairs 参数缺失或为空", engine.ErrMisconfigured)
	}

	type fieldPair struct {
		left, relation, right string
	}
	pairs := make([]fieldPair, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: 第 %d 个字段对格式错误", engine.ErrMisconfigured, i)
		}
		p := fieldPair{
			left:     dataset.AsString(m["left"]),
			relation: dataset.AsString(m["relation"]),
			right:    dataset.AsString(m["right"]),
		}
		if !rc.Dataset.Schema.Has(p.left) || !rc.Dataset.Schema.Has(p.right) {
			return nil, fmt.Errorf("%w: 字段对 %s/%s 不在数据集模式中", engine.ErrMisconfigured, p.left, p.right)
		}
		switch p.relation {
		case "eq", "lte", "gte":
		default:
			return nil, fmt.Errorf("%w: 不支持的关系 %q", engine.ErrMisconfigured, p.relation)
		}
		pairs = append(pairs, p)
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, p := range pairs {
			lv, lok := dataset.AsFloat(rec.Value(p.left))
			rv, rok := dataset.AsFloat(rec.Value(p.right))
			if !lok || !rok {
				continue
			}
			violated := false
			switch p.relation {
			case "eq":
				violated = lv != rv
			case "lte":
				violated = lv > rv
			case "gte":
				violated = lv < rv
			}
			if violated {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       p.left,
					Confidence:  1.0,
					Explanation: fmt.Sprintf("字段 %s=%.2f 与 %s=%.2f 违反关系 %s", p.left, lv, p.right, rv, p.relation),
					Details:     models.JSONB{"left": p.left, "right": p.right, "relation": p.relation, "left_value": lv, "right_value": rv},
				})
			}
		}
	}
	return findings, nil
}
