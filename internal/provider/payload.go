package provider

import "encoding/json"

// 生体ペイロードは頻繁に部分欠落するため、正規化はフィールド単位で
// ベストエフォートに行う。欠落・型不一致はnilに落とし、レコード全体を
// 捨てることはしない。

// decodeObject はJSONボディをマップに変換する。オブジェクトでない場合は空マップを返す。
func decodeObject(payload []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// objectList は指定キー配下のオブジェクト配列を返す。
func objectList(m map[string]any, key string) []map[string]any {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// objectField は指定キー配下のネストオブジェクトを返す。無い場合は空マップ。
func objectField(m map[string]any, key string) map[string]any {
	if obj, ok := m[key].(map[string]any); ok {
		return obj
	}
	return map[string]any{}
}

// floatField は最初に見つかったキーの数値をポインタで返す。無い場合はnil。
func floatField(m map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if v, ok := m[key].(float64); ok {
			f := v
			return &f
		}
	}
	return nil
}

// intField は最初に見つかったキーの数値を整数ポインタで返す。無い場合はnil。
func intField(m map[string]any, keys ...string) *int {
	for _, key := range keys {
		if v, ok := m[key].(float64); ok {
			n := int(v)
			return &n
		}
	}
	return nil
}

// scaledFloat は数値を除数で割った値をポインタで返す。値が無い場合はnil。
func scaledFloat(m map[string]any, divisor float64, keys ...string) *float64 {
	v := floatField(m, keys...)
	if v == nil {
		return nil
	}
	f := *v / divisor
	return &f
}

// ExtractProviderUserID はWebhookペイロードからプロバイダー側ユーザーIDを抽出する。
// トップレベルのuserId/user_idを優先し、無ければレコード配列
// （dailies/records/data）の先頭要素から探す。見つからない場合は空文字列。
func ExtractProviderUserID(payload []byte) string {
	body := decodeObject(payload)

	if id := stringValue(body, "userId", "user_id"); id != "" {
		return id
	}

	for _, key := range []string{"dailies", "records", "data"} {
		records := objectList(body, key)
		if len(records) == 0 {
			continue
		}
		if id := stringValue(records[0], "userId", "user_id"); id != "" {
			return id
		}
	}

	return ""
}

// scaledInt は数値を除数で割り整数に切り捨てた値をポインタで返す。値が無い場合はnil。
func scaledInt(m map[string]any, divisor float64, keys ...string) *int {
	v := floatField(m, keys...)
	if v == nil {
		return nil
	}
	n := int(*v / divisor)
	return &n
}
